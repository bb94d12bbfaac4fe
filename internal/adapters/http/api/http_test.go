package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/fighterstats/internal/adapters/accesslog"
	"github.com/okian/fighterstats/internal/adapters/http/api"
	"github.com/okian/fighterstats/internal/domain/auth"
	"github.com/okian/fighterstats/internal/domain/dataset"
	"github.com/okian/fighterstats/internal/domain/query"
	"github.com/okian/fighterstats/internal/domain/ratelimit"
	"github.com/okian/fighterstats/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	secret = "s3cret"

	fightersCSV = `fighter_name,Height_cms,Weight_lbs,Reach_in,strikes_landed_per_min,strike_accuracy_pct,strikes_absorbed_per_min,strike_defense_pct,takedowns_per_15min,takedown_accuracy_pct,takedown_defense_pct,submission_attempts_per_15min
Jon Jones,193,205,215,4.3,57,2.2,64,,45,95,0.5
Amanda Nunes,173,135,175,4.9,52,2.9,58,,46,80,0.4
Tom Jones,180,170,,3.0,40,3.0,50,,,,
`
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

type memRecorder struct {
	mu      sync.Mutex
	entries []accesslog.Entry
}

func (m *memRecorder) Record(_ context.Context, e accesslog.Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return true
}

func (m *memRecorder) all() []accesslog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]accesslog.Entry(nil), m.entries...)
}

// brokenEngine fails every aggregation with an unexpected error.
type brokenEngine struct{ *query.Engine }

func (brokenEngine) StrikingSummary() (map[string]query.Mean, error) {
	return nil, fmt.Errorf("%w: %q", query.ErrUnknownColumn, "strikes_landed_per_min")
}

// overflowEngine reports a mean that cannot be encoded as JSON.
type overflowEngine struct{ *query.Engine }

func (overflowEngine) DatasetSummary() query.Summary {
	return query.Summary{TotalFighters: 2, AverageHeight: query.Mean{Value: math.Inf(1), Defined: true, Count: 2}}
}

func newEngine(t *testing.T, csv string) *query.Engine {
	t.Helper()
	table, err := dataset.Load(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return query.NewEngine(table)
}

// newMux registers every route and wraps the mux in the access log, the way
// the service serves it.
func newMux(t *testing.T, engine api.Engine, opts ...api.Option) http.Handler {
	t.Helper()
	gate, err := auth.NewGate(secret)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	mux := http.NewServeMux()
	s := api.NewServer(engine, gate, opts...)
	s.Register(context.Background(), mux)
	return s.Handler(mux)
}

func get(mux http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	return do(mux, http.MethodGet, target, header)
}

func do(mux http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	req.RemoteAddr = "203.0.113.7:51234"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func withKey() map[string]string { return map[string]string{"X-API-Key": secret} }

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body
}

func TestRoutes(t *testing.T) {
	engine := newEngine(t, fightersCSV)

	Convey("Given a server without quotas", t, func() {
		mux := newMux(t, engine)

		Convey("The root greets without a credential", func() {
			w := get(mux, "/", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "Welcome to the UFC Fighter Stats API")
		})

		Convey("Protected routes demand a credential", func() {
			for _, path := range []string{"/fighters", "/fighters/Jon%20Jones", "/search?query=jon", "/summary/striking", "/summary/grappling", "/stats/summary"} {
				w := get(mux, path, nil)
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(decodeError(w)["code"], ShouldEqual, "unauthorized")

				w = get(mux, path, map[string]string{"X-API-Key": "wrong"})
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
			}
		})

		Convey("The credential may come from the query string", func() {
			w := get(mux, "/fighters?api_key="+secret, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("GET /fighters lists every record in order", func() {
			w := get(mux, "/fighters", withKey())
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")

			var body []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body, ShouldHaveLength, 3)
			So(body[0]["fighter_name"], ShouldEqual, "Jon Jones")
			So(body[0]["Height_cms"], ShouldEqual, 193.0)
			So(body[2]["Reach_in"], ShouldEqual, "")
		})

		Convey("GET /fighters/{name} is case-insensitive", func() {
			w := get(mux, "/fighters/aMANDA%20nunes", withKey())
			So(w.Code, ShouldEqual, http.StatusOK)
			var body map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["fighter_name"], ShouldEqual, "Amanda Nunes")
		})

		Convey("An unknown fighter is a 404, not an empty list", func() {
			w := get(mux, "/fighters/unknown", withKey())
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w), ShouldResemble, map[string]string{"code": "not_found", "message": "Fighter not found"})
		})

		Convey("GET /search matches substrings", func() {
			w := get(mux, "/search?query=JONES", withKey())
			So(w.Code, ShouldEqual, http.StatusOK)
			var body []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body, ShouldHaveLength, 2)
			So(body[1]["fighter_name"], ShouldEqual, "Tom Jones")
		})

		Convey("GET /search treats the query literally", func() {
			w := get(mux, "/search?query=J.n", withKey())
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w)["message"], ShouldEqual, "No fighters matched your search")
		})

		Convey("GET /search without a query is a bad request", func() {
			w := get(mux, "/search", withKey())
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "bad_request")
		})

		Convey("GET /summary/grappling reports undefined means as null", func() {
			w := get(mux, "/summary/grappling", withKey())
			So(w.Code, ShouldEqual, http.StatusOK)

			var body map[string]map[string]*float64
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			stats := body["average_grappling_stats"]
			So(stats, ShouldHaveLength, 4)
			So(stats["takedowns_per_15min"], ShouldBeNil)
			So(*stats["takedown_accuracy_pct"], ShouldEqual, 45.5)
		})

		Convey("GET /summary/striking averages the striking columns", func() {
			w := get(mux, "/summary/striking", withKey())
			So(w.Code, ShouldEqual, http.StatusOK)

			var body map[string]map[string]float64
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["average_striking_stats"]["strike_accuracy_pct"], ShouldAlmostEqual, 49.666666, 0.0001)
		})

		Convey("GET /stats/summary reports the dataset overview", func() {
			w := get(mux, "/stats/summary", withKey())
			So(w.Code, ShouldEqual, http.StatusOK)

			var body map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["total_fighters"], ShouldEqual, 3.0)
			So(body["average_height"], ShouldAlmostEqual, 182.0, 0.0001)
			So(body["average_reach"], ShouldEqual, 195.0)
		})

		Convey("GET /healthz exposes metrics without a credential", func() {
			w := get(mux, "/healthz", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "fighterstats_api_http_requests_total")
		})

		Convey("Unknown paths get a JSON 404", func() {
			w := get(mux, "/nope", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w)["code"], ShouldEqual, "not_found")
		})
	})

	Convey("Given a single-record dataset with a missing weight", t, func() {
		mux := newMux(t, newEngine(t, "fighter_name,Height_cms,Weight_lbs,Reach_in\nJon Jones,193,,215\n"))

		Convey("The summary marks the weight undefined", func() {
			w := get(mux, "/stats/summary", withKey())
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual,
				`{"total_fighters":1,"average_height":193,"average_weight":null,"average_reach":215}`)
		})
	})

	Convey("Given an engine whose summary cannot be encoded", t, func() {
		mux := newMux(t, overflowEngine{engine})

		Convey("The caller sees a generic 500 instead of an empty success", func() {
			w := get(mux, "/stats/summary", withKey())
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decodeError(w)["code"], ShouldEqual, "internal_error")
		})
	})

	Convey("Given values near the largest finite float", t, func() {
		mux := newMux(t, newEngine(t, "fighter_name,Height_cms,Weight_lbs,Reach_in\nA,1.7e308,1,1\nB,1.7e308,1,1\n"))

		Convey("The summary is still a finite success", func() {
			w := get(mux, "/stats/summary", withKey())
			So(w.Code, ShouldEqual, http.StatusOK)

			var body map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["average_height"], ShouldEqual, 1.7e308)
		})
	})

	Convey("Given an engine that fails unexpectedly", t, func() {
		mux := newMux(t, brokenEngine{engine})

		Convey("The caller sees a generic 500", func() {
			w := get(mux, "/summary/striking", withKey())
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			body := decodeError(w)
			So(body["code"], ShouldEqual, "internal_error")
			So(body["message"], ShouldNotContainSubstring, "strikes_landed_per_min")
		})
	})
}

func TestRateLimit(t *testing.T) {
	engine := newEngine(t, fightersCSV)

	Convey("Given a server with a quota of two per minute", t, func() {
		limiter := ratelimit.NewFixedWindow(map[string]ratelimit.Quota{
			api.EndpointFighters: {Requests: 2, Window: time.Minute},
			api.EndpointRoot:     {Requests: 1, Window: time.Minute},
		})
		rec := &memRecorder{}
		mux := newMux(t, engine, api.WithLimiter(limiter), api.WithRecorder(rec))

		Convey("The third request is rejected with a retry hint", func() {
			So(get(mux, "/fighters", withKey()).Code, ShouldEqual, http.StatusOK)
			w := get(mux, "/fighters", withKey())
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("X-RateLimit-Limit"), ShouldEqual, "2")
			So(w.Header().Get("X-RateLimit-Remaining"), ShouldEqual, "0")

			w = get(mux, "/fighters", withKey())
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decodeError(w)["code"], ShouldEqual, "rate_limited")
			So(w.Header().Get("Retry-After"), ShouldNotBeEmpty)
		})

		Convey("Quota is checked before the credential", func() {
			get(mux, "/fighters", nil)
			get(mux, "/fighters", nil)
			w := get(mux, "/fighters", nil)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("Endpoints keep separate budgets", func() {
			So(get(mux, "/", nil).Code, ShouldEqual, http.StatusOK)
			So(get(mux, "/", nil).Code, ShouldEqual, http.StatusTooManyRequests)
			So(get(mux, "/fighters", withKey()).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Rejected requests are still logged", func() {
			get(mux, "/", nil)
			get(mux, "/", nil)
			entries := rec.all()
			So(entries, ShouldHaveLength, 2)
			So(entries[0].Status, ShouldEqual, http.StatusOK)
			So(entries[1].Status, ShouldEqual, http.StatusTooManyRequests)
			So(entries[1].Endpoint, ShouldEqual, api.EndpointRoot)
			So(entries[1].Client, ShouldEqual, "203.0.113.7")
		})
	})

	Convey("Given a server that trusts X-Forwarded-For", t, func() {
		limiter := ratelimit.NewFixedWindow(map[string]ratelimit.Quota{
			api.EndpointRoot: {Requests: 1, Window: time.Minute},
		})
		mux := newMux(t, engine, api.WithLimiter(limiter), api.WithTrustForwardedFor(true))

		Convey("Clients behind one proxy are counted separately", func() {
			So(get(mux, "/", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}).Code, ShouldEqual, http.StatusOK)
			So(get(mux, "/", map[string]string{"X-Forwarded-For": "198.51.100.2"}).Code, ShouldEqual, http.StatusOK)
			So(get(mux, "/", map[string]string{"X-Forwarded-For": "198.51.100.1"}).Code, ShouldEqual, http.StatusTooManyRequests)
		})
	})
}

func TestRequestLog(t *testing.T) {
	engine := newEngine(t, fightersCSV)

	Convey("Given a server with a recorder", t, func() {
		rec := &memRecorder{}
		mux := newMux(t, engine, api.WithRecorder(rec))

		Convey("Each request yields one entry with a matching request id", func() {
			w := get(mux, "/fighters/unknown?api_key="+secret, nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)

			entries := rec.all()
			So(entries, ShouldHaveLength, 1)
			e := entries[0]
			So(e.RequestID, ShouldEqual, w.Header().Get(accesslog.RequestIDHeader))
			So(e.Method, ShouldEqual, http.MethodGet)
			So(e.Status, ShouldEqual, http.StatusNotFound)
			So(e.URI, ShouldStartWith, "/fighters/unknown")
			So(e.URI, ShouldNotContainSubstring, secret)
			So(e.Endpoint, ShouldEqual, api.EndpointFighter)
		})

		Convey("Unauthorized requests are logged too", func() {
			get(mux, "/stats/summary", nil)
			So(rec.all()[0].Status, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Requests outside the protected routes are logged too", func() {
			get(mux, "/healthz", nil)
			w := do(mux, http.MethodPost, "/fighters", withKey())
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			get(mux, "/fighters", withKey())

			entries := rec.all()
			So(entries, ShouldHaveLength, 3)
			So(entries[0].Endpoint, ShouldEqual, api.EndpointHealth)
			So(entries[0].Status, ShouldEqual, http.StatusOK)
			So(entries[1].Method, ShouldEqual, http.MethodPost)
			So(entries[1].Status, ShouldEqual, http.StatusMethodNotAllowed)
			So(entries[1].RequestID, ShouldEqual, w.Header().Get(accesslog.RequestIDHeader))
			So(entries[2].Status, ShouldEqual, http.StatusOK)
		})

		Convey("Routes registered by other packages fall back to the mux pattern", func() {
			gate, _ := auth.NewGate(secret)
			s := api.NewServer(engine, gate, api.WithRecorder(rec))
			mux := http.NewServeMux()
			mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			get(s.Handler(mux), "/openapi.yaml", nil)

			entries := rec.all()
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Endpoint, ShouldEqual, "GET /openapi.yaml")
		})
	})
}

func TestCredentialConflict(t *testing.T) {
	engine := newEngine(t, fightersCSV)
	conflicting := map[string]string{"X-API-Key": secret}

	Convey("Given header and query credentials that differ", t, func() {
		Convey("The header wins by default", func() {
			mux := newMux(t, engine)
			So(get(mux, "/fighters?api_key=other", conflicting).Code, ShouldEqual, http.StatusOK)
		})

		Convey("The request is refused when conflicts are rejected", func() {
			mux := newMux(t, engine, api.WithRejectConflictingCredentials(true))
			So(get(mux, "/fighters?api_key=other", conflicting).Code, ShouldEqual, http.StatusUnauthorized)
			So(get(mux, "/fighters?api_key="+secret, conflicting).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Custom credential locations are honoured", func() {
			mux := newMux(t, engine, api.WithCredentialLocations("X-Fighters-Key", "key"))
			So(get(mux, "/fighters", map[string]string{"X-Fighters-Key": secret}).Code, ShouldEqual, http.StatusOK)
			So(get(mux, "/fighters?key="+secret, nil).Code, ShouldEqual, http.StatusOK)
			So(get(mux, "/fighters", withKey()).Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestClientIdentity(t *testing.T) {
	cases := []struct {
		name   string
		remote string
		xff    string
		trust  bool
		want   string
	}{
		{"peer address", "192.0.2.1:4000", "", false, "192.0.2.1"},
		{"forwarded ignored", "192.0.2.1:4000", "198.51.100.9", false, "192.0.2.1"},
		{"forwarded trusted", "192.0.2.1:4000", "198.51.100.9, 10.0.0.1", true, "198.51.100.9"},
		{"ipv6 peer", "[2001:db8::1]:4000", "", false, "2001:db8::1"},
		{"no port", "192.0.2.1", "", false, "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := api.ClientIdentity(req, tc.trust); got != tc.want {
				t.Errorf("ClientIdentity = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChain(t *testing.T) {
	Convey("Chain runs interceptors outermost first and honours short-circuits", t, func() {
		var order []string
		mw := func(name string, stop bool) api.Middleware {
			return func(next http.HandlerFunc) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					if stop {
						w.WriteHeader(http.StatusTeapot)
						return
					}
					next(w, r)
				}
			}
		}
		h := api.Chain(func(w http.ResponseWriter, _ *http.Request) {
			order = append(order, "handler")
		}, mw("a", false), mw("b", true), mw("c", false))

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		So(order, ShouldResemble, []string{"a", "b"})
		So(w.Code, ShouldEqual, http.StatusTeapot)
	})
}
