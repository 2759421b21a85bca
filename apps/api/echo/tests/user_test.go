package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	. "github.com/lifecraft/backend/apps/api/echo"
	"github.com/lifecraft/backend/core/user"
	testutil "github.com/lifecraft/backend/tests"
)

func Test_userApi_signup(t *testing.T) {
	resetAll(t)

	testutil.CreateUser(t, usrRepo, "Taken", "takenuser", "taken@test.cd", "", nil, true)

	signup := func(name, uname, email string) []byte {
		return marchallObj(t, map[string]string{
			"name":             name,
			"username":         uname,
			"email":            email,
			"password":         "G00d#Pass!x",
			"password_confirm": "G00d#Pass!x",
		})
	}

	t.Run("creates a learner", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/signup", signup("New Learner", "newlearner", "new@test.cd"))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(usr.Roles) != 1 || usr.Roles[0] != user.RoleLearner {
			t.Errorf("Roles = %v; want [%v]", usr.Roles, user.RoleLearner)
		}
		if usr.IsActive == nil || !*usr.IsActive {
			t.Errorf("expected an active account")
		}
	})

	t.Run("roles in the payload are ignored", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"name":             "Sneaky",
			"username":         "sneakyone",
			"email":            "sneaky@test.cd",
			"password":         "G00d#Pass!x",
			"password_confirm": "G00d#Pass!x",
			"roles":            []string{user.RoleAdmin},
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/signup", body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if usr.IsAdmin() {
			t.Errorf("self-signup must never grant admin; got roles %v", usr.Roles)
		}
	})

	t.Run("duplicate username is rejected", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/signup", signup("Copy Cat", "takenuser", "copycat@test.cd"))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("weak password is rejected", func(t *testing.T) {
		body := marchallObj(t, map[string]string{
			"name":             "Weak",
			"username":         "weakling",
			"email":            "weak@test.cd",
			"password":         "password",
			"password_confirm": "password",
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/signup", body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})
}

func Test_userApi_login(t *testing.T) {
	resetAll(t)

	testutil.CreateUser(t, usrRepo, "Hero", "herolearner", "hero@test.cd", "Str0ng#Pwd!", []string{user.RoleLearner}, true)
	testutil.CreateUser(t, usrRepo, "Gone", "gonelearner", "gone@test.cd", "Str0ng#Pwd!", []string{user.RoleLearner}, false)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: pwd})
	}

	tests := []httpTest{
		{
			name: "valid credentials", body: login("herolearner", "Str0ng#Pwd!"),
			wantCode: http.StatusOK,
		},
		{
			name: "email works too", body: login("hero@test.cd", "Str0ng#Pwd!"),
			wantCode: http.StatusOK,
		},
		{
			name: "wrong password", body: login("herolearner", "nope"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "unknown user", body: login("nobody", "Str0ng#Pwd!"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", body: login("gonelearner", "Str0ng#Pwd!"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				var res LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
					t.Fatalf("unmarshalling response: %v", err)
				}
				if res.Token == "" {
					t.Errorf("expected a token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_leaderboard(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	first := testutil.CreateUser(t, usrRepo, "First", "firstone", "first@test.cd", "", []string{user.RoleLearner}, true)
	second := testutil.CreateUser(t, usrRepo, "Second", "secondone", "second@test.cd", "", []string{user.RoleLearner}, true)
	third := testutil.CreateUser(t, usrRepo, "Third", "thirdone", "third@test.cd", "", []string{user.RoleLearner}, true)
	ghost := testutil.CreateUser(t, usrRepo, "Ghost", "ghostone", "ghost@test.cd", "", []string{user.RoleLearner}, false)

	addPoints := func(id string, pts int) {
		if _, err := usrRepo.AddUserPoints(ctx, id, pts); err != nil {
			t.Fatalf("AddUserPoints(): %v", err)
		}
	}
	addPoints(first.ID, 800)
	addPoints(second.ID, 300)
	addPoints(third.ID, 50)
	addPoints(ghost.ID, 9000) // inactive; never listed

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/users/leaderboard")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("ranked by points", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/leaderboard", getToken(t, third))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var entries []LeaderboardEntry
		if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("len(entries) = %d; want 3; body %s", len(entries), rec.Body.String())
		}
		wantOrder := []string{first.ID, second.ID, third.ID}
		wantRanks := []string{"Responder", "Helper", "Novice"}
		for i, entry := range entries {
			if entry.Position != i+1 {
				t.Errorf("entries[%d].Position = %d; want %d", i, entry.Position, i+1)
			}
			if entry.ID != wantOrder[i] {
				t.Errorf("entries[%d].ID = %s; want %s", i, entry.ID, wantOrder[i])
			}
			if entry.Rank != wantRanks[i] {
				t.Errorf("entries[%d].Rank = %s; want %s", i, entry.Rank, wantRanks[i])
			}
		}
	})

	t.Run("limit is honored", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/leaderboard?limit=1", getToken(t, third))
		app.ServeHTTP(rec, req)

		var entries []LeaderboardEntry
		if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(entries) != 1 || entries[0].ID != first.ID {
			t.Errorf("entries = %v; want only %s", entries, first.ID)
		}
	})
}

func Test_userApi_userQuery(t *testing.T) {
	resetAll(t)

	learner := testutil.CreateUser(t, usrRepo, "Hero", "herolearner", "hero@test.cd", "", []string{user.RoleLearner}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "adminboss", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, learner),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Get all", path: "/v1/users", token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallList(t, learner, admin),
		},
		{
			name: "search", path: "/v1/users?search=hero", token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallList(t, learner),
		},
		{
			name: "role filter", path: "/v1/users?role=" + user.RoleAdmin, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallList(t, admin),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	resetAll(t)

	learner := testutil.CreateUser(t, usrRepo, "Hero", "herolearner", "hero@test.cd", "", []string{user.RoleLearner}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "otherone", "other@test.cd", "", []string{user.RoleLearner}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "adminboss", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	tests := []httpTest{
		{
			name: "own profile", path: "/v1/users/" + learner.ID, token: getToken(t, learner),
			wantCode: http.StatusOK, wantData: marchallObj(t, learner),
		},
		{
			name: "someone else's profile is hidden", path: "/v1/users/" + other.ID, token: getToken(t, learner),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "admin sees anyone", path: "/v1/users/" + other.ID, token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, other),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
