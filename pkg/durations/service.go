// Package durations serves and fetches mock commute durations.
//
// The service answers GET /durations?addresses=a|b with random minutes
// per travel mode for each address. Addresses are pipe-separated so
// commas inside an address survive.
package durations

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/uprent-dev/commutesync/pkg/commute"
)

// Path is the route of the durations endpoint.
const Path = "/durations"

// Inclusive ranges, in minutes, of the generated durations.
var (
	WalkingRange = [2]int{45, 120}
	BikingRange  = [2]int{25, 90}
	DrivingRange = [2]int{10, 60}
	TransitRange = [2]int{10, 60}
)

// Response is the body of a durations reply.
type Response struct {
	Results map[string]commute.Durations `json:"results"`
}

// Service generates mock durations.
type Service struct {
	logger *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSource makes the generated durations deterministic.
func WithSource(src rand.Source) ServiceOption {
	return func(s *Service) {
		s.rnd = rand.New(src)
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a durations service.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		logger: slog.Default(),
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes mounts the service on r.
func (s *Service) Routes(r chi.Router) {
	r.Get(Path, s.handleDurations)
}

// Handler returns a router serving only the durations endpoint.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// Generate returns durations for every address.
func (s *Service) Generate(addresses []string) map[string]commute.Durations {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make(map[string]commute.Durations, len(addresses))
	for _, addr := range addresses {
		results[addr] = commute.Durations{
			Walking: s.between(WalkingRange),
			Biking:  s.between(BikingRange),
			Driving: s.between(DrivingRange),
			Transit: s.between(TransitRange),
		}
	}
	return results
}

func (s *Service) between(r [2]int) int {
	return r[0] + s.rnd.IntN(r[1]-r[0]+1)
}

func (s *Service) handleDurations(w http.ResponseWriter, r *http.Request) {
	addresses := ParseAddresses(r.URL.Query().Get("addresses"))
	resp := Response{Results: s.Generate(addresses)}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("writing durations response failed", "error", err)
	}
}

// ParseAddresses splits a pipe-separated list, dropping empty entries.
func ParseAddresses(q string) []string {
	parts := strings.Split(q, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinAddresses is the inverse of ParseAddresses.
func JoinAddresses(addresses []string) string {
	return strings.Join(addresses, "|")
}
