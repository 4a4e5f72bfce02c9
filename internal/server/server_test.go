package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/backup"
	"github.com/dukerupert/hearth/internal/blob"
	"github.com/dukerupert/hearth/internal/database"
	"github.com/dukerupert/hearth/internal/model"
)

func setupServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs, err := blob.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("blob dir: %v", err)
	}

	srv := New(db, Options{
		Tokens:        auth.NewTokenIssuer("test-secret", "hearth", time.Hour),
		Blobs:         blobs,
		CORSOrigins:   []string{"*"},
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		AuthRateLimit: 1000,
	})
	return srv.Router()
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	case []byte:
		r = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type session struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Role          string `json:"role"`
	HouseholdID   string `json:"householdId"`
	HouseholdName string `json:"householdName"`
	Token         string `json:"token"`
}

func register(t *testing.T, h http.Handler, household, username string) session {
	t.Helper()
	rec := call(t, h, "POST", "/api/auth/register-household", "", map[string]string{
		"householdName": household,
		"housePassword": "house-" + household,
		"adminName":     "Admin " + username,
		"username":      username,
		"password":      "pw-" + username,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body = %s", username, rec.Code, rec.Body.String())
	}
	return decode[session](t, rec)
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, want, rec.Body.String())
	}
}

func TestAcmeScenario(t *testing.T) {
	h := setupServer(t)

	admin := register(t, h, "Acme", "alice")
	if admin.Role != model.RoleAdmin || admin.Token == "" || admin.HouseholdName != "Acme" {
		t.Fatalf("register response = %+v", admin)
	}

	rec := call(t, h, "POST", "/api/auth/login", "", map[string]string{"username": "ALICE", "password": "pw-alice"})
	expectStatus(t, rec, http.StatusOK)
	login := decode[session](t, rec)
	if login.ID != admin.ID {
		t.Errorf("login id = %q, want %q", login.ID, admin.ID)
	}

	rec = call(t, h, "POST", "/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	expectStatus(t, rec, http.StatusUnauthorized)
	if msg := decode[map[string]string](t, rec)["message"]; msg != "invalid username or password" {
		t.Errorf("bad login message = %q", msg)
	}

	rec = call(t, h, "POST", "/api/bills", login.Token, map[string]any{
		"title":   "Rent",
		"amount":  1200,
		"dueDate": "2030-01-01",
		"user":    "family",
	})
	expectStatus(t, rec, http.StatusCreated)
	bill := decode[model.Bill](t, rec)
	if bill.ID == "" || bill.UserID != model.FamilyOwner || bill.Status != model.BillPending {
		t.Fatalf("created bill = %+v", bill)
	}

	rec = call(t, h, "GET", "/api/data", login.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	var raw map[string]json.RawMessage
	json.Unmarshal(rec.Body.Bytes(), &raw)
	snap := decode[model.Snapshot](t, rec)
	if snap.HouseholdName != "Acme" {
		t.Errorf("householdName = %q", snap.HouseholdName)
	}
	if len(snap.Bills) != 1 || snap.Bills[0].ID != bill.ID || snap.Bills[0].Title != "Rent" {
		t.Fatalf("bills = %+v", snap.Bills)
	}
	if !bytes.Contains(raw["bills"], []byte(`"id":"`+bill.ID+`"`)) {
		t.Errorf("bill id not a string in %s", raw["bills"])
	}
	if last := snap.Users[len(snap.Users)-1]; last != model.FamilyMember {
		t.Errorf("last user = %+v, want family", last)
	}
	if snap.Emergency.Insurance != model.NoInsurance {
		t.Errorf("insurance = %q", snap.Emergency.Insurance)
	}

	rec = call(t, h, "DELETE", "/api/bills/"+bill.ID, login.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	if msg := decode[map[string]string](t, rec)["message"]; msg != "Bill removed" {
		t.Errorf("delete message = %q", msg)
	}

	rec = call(t, h, "GET", "/api/data", login.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"bills":[]`) {
		t.Errorf("bills not empty array: %s", rec.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := setupServer(t)

	for _, path := range []string{"/api/data", "/api/bills", "/api/search?q=x", "/api/auth/me"} {
		rec := call(t, h, "GET", path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: status = %d, want 401", path, rec.Code)
		}
	}
	rec := call(t, h, "GET", "/api/data", "garbage", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestHouseholdIsolation(t *testing.T) {
	h := setupServer(t)
	one := register(t, h, "One", "ann")
	two := register(t, h, "Two", "ben")

	rec := call(t, h, "POST", "/api/documents", one.Token, map[string]any{"title": "Passport", "type": "ID"})
	expectStatus(t, rec, http.StatusCreated)
	doc := decode[model.Document](t, rec)

	expectStatus(t, call(t, h, "GET", "/api/documents/"+doc.ID, two.Token, nil), http.StatusNotFound)
	expectStatus(t, call(t, h, "PUT", "/api/documents/"+doc.ID, two.Token, map[string]any{"title": "Stolen", "type": "ID"}), http.StatusNotFound)
	expectStatus(t, call(t, h, "DELETE", "/api/documents/"+doc.ID, two.Token, nil), http.StatusOK)

	rec = call(t, h, "GET", "/api/documents", two.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	if docs := decode[[]model.Document](t, rec); len(docs) != 0 {
		t.Errorf("household two sees %d documents", len(docs))
	}

	rec = call(t, h, "GET", "/api/documents/"+doc.ID, one.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Document](t, rec); got.Title != "Passport" {
		t.Errorf("document changed by other household: %+v", got)
	}
}

func TestDeleteMissingIsIdempotent(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	for i := 0; i < 2; i++ {
		rec := call(t, h, "DELETE", "/api/vehicles/does-not-exist", s.Token, nil)
		expectStatus(t, rec, http.StatusOK)
		if msg := decode[map[string]string](t, rec)["message"]; msg != "Vehicle removed" {
			t.Errorf("message = %q", msg)
		}
	}
}

func TestUpdateRecord(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	rec := call(t, h, "POST", "/api/subscriptions", s.Token, map[string]any{
		"name": "Streaming", "amount": 9.99, "nextBillingDate": "2030-02-01",
	})
	expectStatus(t, rec, http.StatusCreated)
	sub := decode[model.Subscription](t, rec)
	if sub.BillingCycle != model.CycleMonthly || sub.Status != model.SubscriptionActive || sub.UserID != s.ID {
		t.Fatalf("defaults not applied: %+v", sub)
	}

	rec = call(t, h, "PUT", "/api/subscriptions/"+sub.ID, s.Token, map[string]any{
		"name": "Streaming", "amount": 12.5, "nextBillingDate": "2030-02-01", "status": "cancelled", "billingCycle": "yearly",
	})
	expectStatus(t, rec, http.StatusOK)
	updated := decode[model.Subscription](t, rec)
	if updated.Amount != 12.5 || updated.Status != model.SubscriptionCancelled || updated.BillingCycle != model.CycleYearly {
		t.Errorf("updated = %+v", updated)
	}
	if updated.ID != sub.ID || !updated.CreatedAt.Equal(sub.CreatedAt) || updated.UserID != s.ID {
		t.Errorf("identity changed: %+v", updated)
	}

	expectStatus(t, call(t, h, "PUT", "/api/subscriptions/"+sub.ID, s.Token, map[string]any{
		"name": "Streaming", "amount": 1, "nextBillingDate": "2030-02-01", "billingCycle": "weekly",
	}), http.StatusBadRequest)
	expectStatus(t, call(t, h, "PUT", "/api/subscriptions/nope", s.Token, map[string]any{"name": "x"}), http.StatusNotFound)
}

func TestUpdateKeepsOmittedFields(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	rec := call(t, h, "POST", "/api/bills", s.Token, map[string]any{
		"title": "Rent", "amount": 1000, "dueDate": "2024-01-01", "user": "family",
	})
	expectStatus(t, rec, http.StatusCreated)
	bill := decode[model.Bill](t, rec)

	rec = call(t, h, "PUT", "/api/bills/"+bill.ID, s.Token, `{"status":"paid"}`)
	expectStatus(t, rec, http.StatusOK)
	paid := decode[model.Bill](t, rec)
	if paid.Status != model.BillPaid {
		t.Errorf("status = %q, want paid", paid.Status)
	}
	if paid.Title != "Rent" || paid.Amount != 1000 || paid.DueDate != "2024-01-01" || paid.UserID != model.FamilyOwner {
		t.Errorf("bill lost stored fields: %+v", paid)
	}
	if paid.Overdue {
		t.Error("paid bill reported overdue")
	}

	rec = call(t, h, "POST", "/api/documents", s.Token, map[string]any{
		"title": "Health insurance", "type": "Insurance", "secure": true, "number": "POL-991", "tags": []string{"travel"},
	})
	expectStatus(t, rec, http.StatusCreated)
	doc := decode[model.Document](t, rec)

	rec = call(t, h, "PUT", "/api/documents/"+doc.ID, s.Token, `{"title":"Medical cover"}`)
	expectStatus(t, rec, http.StatusOK)
	renamed := decode[model.Document](t, rec)
	if renamed.Title != "Medical cover" || renamed.Type != "Insurance" || !renamed.Secure {
		t.Errorf("document = %+v", renamed)
	}
	if renamed.Number != doc.Number {
		t.Errorf("number = %q, want the stored hash %q", renamed.Number, doc.Number)
	}
	if len(renamed.Tags) != 1 || renamed.Tags[0] != "travel" {
		t.Errorf("tags = %v, want [travel]", renamed.Tags)
	}

	rec = call(t, h, "POST", "/api/health", s.Token, map[string]any{
		"userId": s.ID, "type": "Vaccination", "value": "Tetanus", "date": "2024-01-10", "nextDue": "2034-01-10",
	})
	expectStatus(t, rec, http.StatusCreated)
	shot := decode[model.Health](t, rec)

	rec = call(t, h, "PUT", "/api/health/"+shot.ID, s.Token, `{"nextDue":"2031-01-01"}`)
	expectStatus(t, rec, http.StatusOK)
	got := decode[model.Health](t, rec)
	v, ok := got.Detail.(model.Vaccination)
	if !ok {
		t.Fatalf("detail = %T, want Vaccination", got.Detail)
	}
	if v.Value != "Tetanus" || v.Date != "2024-01-10" || v.NextDue != "2031-01-01" || got.UserID != s.ID {
		t.Errorf("health = %+v %+v", got, v)
	}

	rec = call(t, h, "PUT", "/api/health/"+shot.ID, s.Token, `{"type":"Horoscope"}`)
	expectStatus(t, rec, http.StatusBadRequest)
	rec = call(t, h, "PUT", "/api/bills/"+bill.ID, s.Token, `{"title":"  "}`)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestStoredTextIsVerbatim(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	body := `{"number":" KA 01 ","customFields":[{"label":" Color ","value":"red"},{"label":"","value":" "}]}`
	rec := call(t, h, "POST", "/api/vehicles", s.Token, body)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[model.Vehicle](t, rec)

	want := []model.CustomField{{Label: " Color ", Value: "red"}, {Label: "", Value: " "}}
	check := func(v model.Vehicle) {
		t.Helper()
		if v.Number != " KA 01 " {
			t.Errorf("number = %q, want %q", v.Number, " KA 01 ")
		}
		if len(v.CustomFields) != len(want) {
			t.Fatalf("customFields = %+v, want %+v", v.CustomFields, want)
		}
		for i := range want {
			if v.CustomFields[i] != want[i] {
				t.Errorf("customFields[%d] = %+v, want %+v", i, v.CustomFields[i], want[i])
			}
		}
	}
	check(created)
	check(decode[model.Vehicle](t, call(t, h, "GET", "/api/vehicles/"+created.ID, s.Token, nil)))

	rec = call(t, h, "POST", "/api/vehicles", s.Token, `{"number":"   "}`)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestValidationErrors(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	cases := []struct {
		path string
		body any
	}{
		{"/api/bills", map[string]any{"amount": 10, "dueDate": "2030-01-01"}},
		{"/api/bills", map[string]any{"title": "Rent", "amount": -1, "dueDate": "2030-01-01"}},
		{"/api/bills", map[string]any{"title": "Rent", "amount": 1, "dueDate": "soon"}},
		{"/api/documents", map[string]any{"title": "Passport"}},
		{"/api/vehicles", map[string]any{"customFields": []any{}}},
		{"/api/emergency-contacts", map[string]any{"name": "Vet"}},
		{"/api/assets", map[string]any{"title": "Boiler", "serviceInterval": -5}},
		{"/api/bills", "{not json"},
	}
	for _, c := range cases {
		rec := call(t, h, "POST", c.path, s.Token, c.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s %v: status = %d, want 400", c.path, c.body, rec.Code)
		}
	}
}

func TestForeignOwnerRejected(t *testing.T) {
	h := setupServer(t)
	one := register(t, h, "One", "ann")
	two := register(t, h, "Two", "ben")

	rec := call(t, h, "POST", "/api/bills", one.Token, map[string]any{
		"title": "Rent", "amount": 10, "dueDate": "2030-01-01", "userId": two.ID,
	})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = call(t, h, "POST", "/api/bills", one.Token, map[string]any{
		"title": "Rent", "amount": 10, "dueDate": "2030-01-01", "userId": one.ID,
	})
	expectStatus(t, rec, http.StatusCreated)
}

func TestUsernameUniqueAcrossHouseholds(t *testing.T) {
	h := setupServer(t)
	register(t, h, "One", "alice")

	rec := call(t, h, "POST", "/api/auth/register-household", "", map[string]string{
		"householdName": "Two",
		"housePassword": "house",
		"adminName":     "Other Alice",
		"username":      "Alice",
		"password":      "pw",
	})
	expectStatus(t, rec, http.StatusBadRequest)
	if msg := decode[map[string]string](t, rec)["message"]; msg != "username is already taken" {
		t.Errorf("message = %q", msg)
	}
}

func TestJoinHousehold(t *testing.T) {
	h := setupServer(t)
	admin := register(t, h, "Acme", "alice")

	join := func(name, password, username string) *httptest.ResponseRecorder {
		return call(t, h, "POST", "/api/auth/join-household", "", map[string]string{
			"householdName": name,
			"housePassword": password,
			"name":          "Bob",
			"username":      username,
			"password":      "pw-bob",
		})
	}

	wrongPassword := join("Acme", "nope", "bob")
	expectStatus(t, wrongPassword, http.StatusUnauthorized)
	unknown := join("Nowhere", "house-Acme", "bob")
	expectStatus(t, unknown, http.StatusUnauthorized)
	if wrongPassword.Body.String() != unknown.Body.String() {
		t.Errorf("join failures differ: %q vs %q", wrongPassword.Body.String(), unknown.Body.String())
	}

	rec := join("Acme", "house-Acme", "bob")
	expectStatus(t, rec, http.StatusCreated)
	bob := decode[session](t, rec)
	if bob.HouseholdID != admin.HouseholdID || bob.Role != model.RoleMember {
		t.Errorf("joined = %+v", bob)
	}
}

func TestInvitationCodeReusableUntilExpiry(t *testing.T) {
	h := setupServer(t)
	admin := register(t, h, "Acme", "alice")

	rec := call(t, h, "POST", "/api/invitations", admin.Token, nil)
	expectStatus(t, rec, http.StatusCreated)
	inv := decode[model.Invitation](t, rec)
	if len(inv.Code) != 6 || inv.Status != model.InvitationPending {
		t.Fatalf("invitation = %+v", inv)
	}

	for _, username := range []string{"bob", "carol"} {
		rec := call(t, h, "POST", "/api/join-invite", "", map[string]string{
			"code":     strings.ToLower(inv.Code),
			"name":     username,
			"username": username,
			"password": "pw",
		})
		expectStatus(t, rec, http.StatusCreated)
		if got := decode[session](t, rec); got.HouseholdID != admin.HouseholdID || got.Role != model.RoleMember {
			t.Errorf("%s joined as %+v", username, got)
		}
	}

	rec = call(t, h, "POST", "/api/join-invite", "", map[string]string{
		"code": "ZZZZZZ", "name": "Dan", "username": "dan", "password": "pw",
	})
	expectStatus(t, rec, http.StatusBadRequest)
	if msg := decode[map[string]string](t, rec)["message"]; msg != "invalid invitation code" {
		t.Errorf("message = %q", msg)
	}

	rec = call(t, h, "GET", "/api/data", admin.Token, nil)
	if users := decode[model.Snapshot](t, rec).Users; len(users) != 4 {
		t.Errorf("users = %+v, want admin, bob, carol, family", users)
	}
}

func TestMe(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	rec := call(t, h, "GET", "/api/auth/me", s.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	me := decode[session](t, rec)
	if me.ID != s.ID || me.HouseholdName != "Acme" || me.Token != "" {
		t.Errorf("me = %+v", me)
	}
}

func TestHealthRecordVariants(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	rec := call(t, h, "POST", "/api/health", s.Token, map[string]any{
		"type": "Vaccination", "value": "Tetanus", "nextDue": "2030-05-01", "dosage": "ignored",
	})
	expectStatus(t, rec, http.StatusCreated)
	fields := decode[map[string]any](t, rec)
	if fields["type"] != "Vaccination" || fields["value"] != "Tetanus" || fields["nextDue"] != "2030-05-01" {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["dosage"]; ok {
		t.Errorf("vaccination carries prescription field: %v", fields)
	}
	if fields["userId"] != s.ID {
		t.Errorf("owner = %v, want %s", fields["userId"], s.ID)
	}

	rec = call(t, h, "POST", "/api/health", s.Token, map[string]any{"type": "Horoscope", "value": "Leo"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = call(t, h, "POST", "/api/health", s.Token, map[string]any{"type": "Prescription", "dosage": "10mg"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestSearch(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	call(t, h, "POST", "/api/documents", s.Token, map[string]any{"title": "50% off coupon", "type": "Voucher"})
	call(t, h, "POST", "/api/documents", s.Token, map[string]any{"title": "Passport", "type": "ID"})
	call(t, h, "POST", "/api/vehicles", s.Token, map[string]any{"number": "PASS-123"})
	call(t, h, "POST", "/api/subscriptions", s.Token, map[string]any{"name": "Gym", "amount": 30, "nextBillingDate": "2030-01-01"})

	rec := call(t, h, "GET", "/api/search?q=%25", s.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	hits := decode[[]map[string]any](t, rec)
	if len(hits) != 1 || hits[0]["title"] != "50% off coupon" || hits[0]["kind"] != "document" {
		t.Errorf("%% search = %v", hits)
	}

	rec = call(t, h, "GET", "/api/search?q=pass", s.Token, nil)
	hits = decode[[]map[string]any](t, rec)
	kinds := map[string]bool{}
	for _, hit := range hits {
		kinds[hit["kind"].(string)] = true
	}
	if len(hits) != 2 || !kinds["document"] || !kinds["vehicle"] {
		t.Errorf("pass search = %v", hits)
	}

	rec = call(t, h, "GET", "/api/search?q=+", s.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("blank search = %s", rec.Body.String())
	}
}

func TestAssetServiceHistoryIsAppendOnly(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	rec := call(t, h, "POST", "/api/assets", s.Token, map[string]any{"title": "Boiler", "serviceInterval": 365})
	expectStatus(t, rec, http.StatusCreated)
	asset := decode[model.Asset](t, rec)

	rec = call(t, h, "POST", "/api/assets/"+asset.ID+"/service", s.Token, map[string]string{"date": "2026-10-01", "note": "Annual check"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Asset](t, rec); len(got.ServiceHistory) != 1 || got.ServiceHistory[0].Note != "Annual check" {
		t.Fatalf("history = %+v", got.ServiceHistory)
	}

	rec = call(t, h, "PUT", "/api/assets/"+asset.ID, s.Token, map[string]any{"title": "Gas boiler", "serviceInterval": 365, "serviceHistory": []any{}})
	expectStatus(t, rec, http.StatusOK)
	got := decode[model.Asset](t, rec)
	if got.Title != "Gas boiler" || len(got.ServiceHistory) != 1 {
		t.Errorf("update dropped history: %+v", got)
	}

	expectStatus(t, call(t, h, "POST", "/api/assets/missing/service", s.Token, map[string]string{"date": "2026-10-01"}), http.StatusNotFound)
	expectStatus(t, call(t, h, "POST", "/api/assets/"+asset.ID+"/service", s.Token, map[string]string{"note": "no date"}), http.StatusBadRequest)
}

func TestSecureDocumentNumberIsHashed(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	rec := call(t, h, "POST", "/api/documents", s.Token, map[string]any{
		"title": "Health insurance", "type": "Insurance", "secure": true, "number": "POL-991",
	})
	expectStatus(t, rec, http.StatusCreated)
	doc := decode[model.Document](t, rec)
	if !auth.LooksHashed(doc.Number) || !auth.CheckSecret(doc.Number, "POL-991") {
		t.Errorf("number not hashed: %q", doc.Number)
	}

	rec = call(t, h, "PUT", "/api/documents/"+doc.ID, s.Token, map[string]any{
		"title": "Health insurance", "type": "Insurance", "secure": true, "number": doc.Number,
	})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Document](t, rec); got.Number != doc.Number {
		t.Errorf("hash rehashed on update")
	}

	rec = call(t, h, "GET", "/api/data", s.Token, nil)
	if ins := decode[model.Snapshot](t, rec).Emergency.Insurance; ins != doc.Number {
		t.Errorf("insurance = %q, want document number", ins)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")
	other := register(t, h, "Other", "olga")

	rec := call(t, h, "POST", "/api/documents", s.Token, map[string]any{"title": "Lease", "type": "Contract"})
	doc := decode[model.Document](t, rec)

	rec = call(t, h, "GET", "/api/documents/"+doc.ID+"/file", s.Token, nil)
	expectStatus(t, rec, http.StatusNotFound)

	content := []byte("%PDF-1.4 lease contents")
	rec = call(t, h, "PUT", "/api/documents/"+doc.ID+"/file", s.Token, content)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Document](t, rec); got.FileURL != "/api/documents/"+doc.ID+"/file" {
		t.Errorf("fileUrl = %q", got.FileURL)
	}

	rec = call(t, h, "GET", "/api/documents/"+doc.ID+"/file", s.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Errorf("downloaded %q", rec.Body.Bytes())
	}

	expectStatus(t, call(t, h, "GET", "/api/documents/"+doc.ID+"/file", other.Token, nil), http.StatusNotFound)
	expectStatus(t, call(t, h, "PUT", "/api/documents/"+doc.ID+"/file", other.Token, content), http.StatusNotFound)

	big := bytes.Repeat([]byte("x"), 10<<20+1)
	expectStatus(t, call(t, h, "PUT", "/api/documents/"+doc.ID+"/file", s.Token, big), http.StatusRequestEntityTooLarge)

	// Metadata updates keep the attachment.
	rec = call(t, h, "PUT", "/api/documents/"+doc.ID, s.Token, map[string]any{"title": "Lease 2026", "type": "Contract"})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Document](t, rec); got.FileURL == "" {
		t.Error("update dropped attachment")
	}

	expectStatus(t, call(t, h, "DELETE", "/api/documents/"+doc.ID, s.Token, nil), http.StatusOK)
	expectStatus(t, call(t, h, "GET", "/api/documents/"+doc.ID+"/file", s.Token, nil), http.StatusNotFound)
}

func TestExportAndBackupsAreAdminOnly(t *testing.T) {
	h := setupServer(t)
	admin := register(t, h, "Acme", "alice")

	rec := call(t, h, "POST", "/api/invitations", admin.Token, map[string]string{})
	code := decode[model.Invitation](t, rec).Code
	rec = call(t, h, "POST", "/api/join-invite", "", map[string]string{"code": code, "name": "Bob", "username": "bob", "password": "pw"})
	member := decode[session](t, rec)

	expectStatus(t, call(t, h, "POST", "/api/export", member.Token, map[string]string{"passphrase": "correct horse"}), http.StatusForbidden)
	expectStatus(t, call(t, h, "GET", "/api/backups", member.Token, nil), http.StatusForbidden)

	call(t, h, "POST", "/api/bills", admin.Token, map[string]any{"title": "Rent", "amount": 1, "dueDate": "2030-01-01"})

	expectStatus(t, call(t, h, "POST", "/api/export", admin.Token, map[string]string{"passphrase": "short"}), http.StatusBadRequest)

	rec = call(t, h, "POST", "/api/export", admin.Token, map[string]string{"passphrase": "correct horse"})
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("content type = %q", ct)
	}
	exp, err := backup.Open(rec.Body.Bytes(), "correct horse")
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	if exp.HouseholdID != admin.HouseholdID || exp.Snapshot.HouseholdName != "Acme" || len(exp.Snapshot.Bills) != 1 {
		t.Errorf("export = %+v", exp)
	}

	rec = call(t, h, "POST", "/api/backups", admin.Token, map[string]string{"passphrase": "correct horse"})
	expectStatus(t, rec, http.StatusCreated)
	created := decode[model.Backup](t, rec)
	if created.SizeBytes == 0 || !strings.HasPrefix(created.ObjectKey, "backups/"+admin.HouseholdID+"/") {
		t.Errorf("backup = %+v", created)
	}

	rec = call(t, h, "GET", "/api/backups", admin.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]model.Backup](t, rec); len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("backups = %+v", list)
	}
}

func TestAlerts(t *testing.T) {
	h := setupServer(t)
	s := register(t, h, "Acme", "alice")

	tomorrow := time.Now().AddDate(0, 0, 1).Format(model.DateLayout)
	later := time.Now().AddDate(0, 2, 0).Format(model.DateLayout)
	call(t, h, "POST", "/api/bills", s.Token, map[string]any{"title": "Power", "amount": 80, "dueDate": tomorrow})
	call(t, h, "POST", "/api/bills", s.Token, map[string]any{"title": "Insurance", "amount": 80, "dueDate": later})

	rec := call(t, h, "GET", "/api/alerts", s.Token, nil)
	expectStatus(t, rec, http.StatusOK)
	alerts := decode[[]map[string]any](t, rec)
	if len(alerts) != 1 || alerts[0]["title"] != "Power" || alerts[0]["kind"] != "bill" {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	h := setupServer(t)

	rec := call(t, h, "GET", "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if decode[map[string]string](t, rec)["status"] != "ok" {
		t.Errorf("health = %s", rec.Body.String())
	}

	call(t, h, "GET", "/api/data", "", nil)

	rec = call(t, h, "GET", "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	want := `hearth_http_requests_total{method="GET",route="GET /api/data",status="401"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics missing %q", want)
	}
}

func TestUnknownAPIRouteIsJSON404(t *testing.T) {
	h := setupServer(t)
	rec := call(t, h, "GET", "/api/nothing-here", "", nil)
	expectStatus(t, rec, http.StatusNotFound)
	if decode[map[string]string](t, rec)["message"] != "not found" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func limitedServer(t *testing.T, trustProxy bool) http.Handler {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	blobs, _ := blob.NewDir(t.TempDir())
	return New(db, Options{
		Tokens:        auth.NewTokenIssuer("test-secret", "hearth", time.Hour),
		Blobs:         blobs,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		AuthRateLimit: 2,
		TrustProxy:    trustProxy,
	}).Router()
}

func loginFrom(h http.Handler, forwardedFor string) int {
	req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(`{"username":"x","password":"y"}`))
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthRateLimit(t *testing.T) {
	h := limitedServer(t, false)

	for i := 0; i < 2; i++ {
		expectStatus(t, call(t, h, "POST", "/api/auth/login", "", map[string]string{"username": "x", "password": "y"}), http.StatusUnauthorized)
	}
	expectStatus(t, call(t, h, "POST", "/api/auth/login", "", map[string]string{"username": "x", "password": "y"}), http.StatusTooManyRequests)
}

func TestAuthRateLimitIgnoresForwardedForByDefault(t *testing.T) {
	h := limitedServer(t, false)

	codes := make([]int, 4)
	for i := range codes {
		codes[i] = loginFrom(h, fmt.Sprintf("203.0.113.%d", i+1))
	}
	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("statuses with rotating X-Forwarded-For = %v, want %v", codes, want)
		}
	}
}

func TestAuthRateLimitBehindTrustedProxy(t *testing.T) {
	h := limitedServer(t, true)

	for i := 0; i < 2; i++ {
		if code := loginFrom(h, "203.0.113.1"); code != http.StatusUnauthorized {
			t.Fatalf("login %d from first client = %d, want 401", i, code)
		}
	}
	if code := loginFrom(h, "203.0.113.1"); code != http.StatusTooManyRequests {
		t.Errorf("third login from first client = %d, want 429", code)
	}
	if code := loginFrom(h, "203.0.113.2"); code != http.StatusUnauthorized {
		t.Errorf("login from second client = %d, want its own budget", code)
	}
}
