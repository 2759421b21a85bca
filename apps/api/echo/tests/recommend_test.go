package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/recommend"
	"github.com/lifecraft/backend/core/user"
	testutil "github.com/lifecraft/backend/tests"
)

func Test_recommendApi(t *testing.T) {
	resetAll(t)

	learner := testutil.CreateUser(t, usrRepo, "Hero", "herolearner", "hero@test.cd", "", []string{user.RoleLearner}, true)
	token := getToken(t, learner)

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/recommendations")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("nothing available short-circuits generation", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/recommendations", token)
		app.ServeHTTP(rec, req)

		var res recommend.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling result: %v", err)
		}
		if len(res.Recommendations) != 0 || res.FromCache {
			t.Errorf("res = %+v; want empty, uncached", res)
		}
		if gen.calls != 0 {
			t.Errorf("gen.calls = %d; want 0", gen.calls)
		}
	})

	fire := testutil.CreateItem(t, learnRepo, learning.KindModule, "Fire Safety", "fire", learning.DifficultyBeginner, 25, false)
	gen.response = string(marchallObj(t, []recommend.Recommendation{
		{ItemID: fire.ID, Title: fire.Title, Reason: "Start with the basics"},
	}))

	t.Run("first call generates, second serves from cache", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/recommendations", token)
		app.ServeHTTP(rec, req)

		var res recommend.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling result: %v", err)
		}
		if res.FromCache {
			t.Errorf("first call must not be served from cache")
		}
		if len(res.Recommendations) != 1 || res.Recommendations[0].ItemID != fire.ID {
			t.Errorf("Recommendations = %+v", res.Recommendations)
		}
		if gen.calls != 1 {
			t.Fatalf("gen.calls = %d; want 1", gen.calls)
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/recommendations", token)
		app.ServeHTTP(rec, req)
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("unmarshalling result: %v", err)
		}
		if !res.FromCache {
			t.Errorf("second call must be served from cache")
		}
		if gen.calls != 1 {
			t.Errorf("gen.calls = %d after cache hit; want 1", gen.calls)
		}
	})
}
