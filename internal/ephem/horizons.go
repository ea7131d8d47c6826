package ephem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/litescript/ls-solarmach/internal/astro"
)

const (
	// HorizonsAPIURL is the JPL Horizons JSON API endpoint.
	HorizonsAPIURL = "https://ssd.jpl.nasa.gov/api/horizons.api"

	// RequestTimeout is the HTTP request timeout.
	RequestTimeout = 30 * time.Second

	// DefaultHorizonsRate keeps us well below the API's fair-use limits.
	DefaultHorizonsRate = rate.Limit(4)
)

// HorizonsProvider queries JPL Horizons for heliocentric state vectors.
type HorizonsProvider struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// HorizonsOption configures a HorizonsProvider.
type HorizonsOption func(*HorizonsProvider)

// WithBaseURL overrides the API endpoint (used by tests and mirrors).
func WithBaseURL(u string) HorizonsOption {
	return func(p *HorizonsProvider) { p.baseURL = u }
}

// WithRateLimit sets the request rate. A zero limit disables limiting.
func WithRateLimit(r rate.Limit, burst int) HorizonsOption {
	return func(p *HorizonsProvider) {
		if r <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(r, burst)
	}
}

// NewHorizonsProvider creates a new Horizons API client.
func NewHorizonsProvider(opts ...HorizonsOption) *HorizonsProvider {
	p := &HorizonsProvider{
		client: &http.Client{
			Timeout: RequestTimeout,
		},
		baseURL: HorizonsAPIURL,
		limiter: rate.NewLimiter(DefaultHorizonsRate, 2),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *HorizonsProvider) Name() string {
	return "Horizons"
}

// HeliocentricPosition implements Provider.
func (p *HorizonsProvider) HeliocentricPosition(ctx context.Context, target TargetInfo, t time.Time) (astro.Vec3, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return astro.Vec3{}, fmt.Errorf("horizons rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.vectorsURL(target, t), nil)
	if err != nil {
		return astro.Vec3{}, fmt.Errorf("build horizons request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return astro.Vec3{}, fmt.Errorf("horizons request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return astro.Vec3{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Horizons answers 400 with a JSON error for unknown targets and
		// out-of-range epochs.
		if msg := horizonsError(body); msg != "" {
			return astro.Vec3{}, fmt.Errorf("%w: %s: %s", ErrNoData, target.Name, msg)
		}
		return astro.Vec3{}, fmt.Errorf("horizons returned status %d: %s", resp.StatusCode, string(body))
	}

	pos, err := parseVectorResponse(body)
	if err != nil {
		return astro.Vec3{}, fmt.Errorf("%s at %s: %w", target.Name, t.UTC().Format(time.RFC3339), err)
	}
	return pos, nil
}

// vectorsURL builds the query for heliocentric ecliptic J2000 positions.
func (p *HorizonsProvider) vectorsURL(target TargetInfo, t time.Time) string {
	// Values must be quoted with single quotes
	params := url.Values{}
	params.Set("format", "json")
	params.Set("COMMAND", fmt.Sprintf("'%s'", target.horizonsCommand()))
	params.Set("OBJ_DATA", "NO")
	params.Set("MAKE_EPHEM", "YES")
	params.Set("EPHEM_TYPE", "VECTORS")
	params.Set("CENTER", "'@10'")       // Sun center
	params.Set("REF_PLANE", "ECLIPTIC") // Ecliptic plane
	params.Set("REF_SYSTEM", "ICRF")
	params.Set("VEC_TABLE", "'1'") // Position only
	params.Set("VEC_LABELS", "YES")
	params.Set("OUT_UNITS", "'AU-D'")
	params.Set("TIME_TYPE", "UT")
	params.Set("TLIST_TYPE", "JD")
	params.Set("TLIST", fmt.Sprintf("'%.9f'", astro.JulianDate(t)))

	return p.baseURL + "?" + params.Encode()
}

// horizonsResponse represents the JSON API response.
type horizonsResponse struct {
	Signature struct {
		Version string `json:"version"`
		Source  string `json:"source"`
	} `json:"signature"`
	Result string `json:"result"`
	Error  string `json:"error"`
}

// horizonsError extracts the error message of a JSON error response.
func horizonsError(body []byte) string {
	var resp horizonsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Error)
}

// parseVectorResponse parses the Horizons JSON response for vector data.
func parseVectorResponse(body []byte) (astro.Vec3, error) {
	var resp horizonsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return astro.Vec3{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if resp.Error != "" {
		return astro.Vec3{}, fmt.Errorf("%w: %s", ErrNoData, strings.TrimSpace(resp.Error))
	}

	// Find the data section between $$SOE and $$EOE markers. Requests
	// outside a spacecraft's ephemeris span come back without them and
	// with an explanation such as "No ephemeris for target ...".
	soeIdx := strings.Index(resp.Result, "$$SOE")
	eoeIdx := strings.Index(resp.Result, "$$EOE")
	if soeIdx == -1 || eoeIdx == -1 || soeIdx >= eoeIdx {
		return astro.Vec3{}, fmt.Errorf("%w: %s", ErrNoData, firstErrorLine(resp.Result))
	}

	dataSection := resp.Result[soeIdx+5 : eoeIdx]
	lines := strings.Split(dataSection, "\n")

	// Vector format (VEC_TABLE='1'):
	// 2459215.500000000 = A.D. 2021-Jan-01 00:00:00.0000 TDB
	//  X =-1.749585912701602E-01 Y = 9.702685794152490E-01 Z =-4.334333435495159E-05
	// OR unlabeled:
	//  -1.749585912701602E-01  9.702685794152490E-01 -4.334333435495159E-05
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "=") && strings.Contains(line, "A.D.") {
			continue
		}

		if strings.Contains(line, "X =") {
			return parseVectorLabeled(line)
		}

		vec, err := parseVectorUnlabeled(line)
		if err == nil {
			return vec, nil
		}
	}

	return astro.Vec3{}, fmt.Errorf("%w: could not parse vector data", ErrNoData)
}

// firstErrorLine picks the most informative line of a Horizons result
// that carries no ephemeris table.
func firstErrorLine(result string) string {
	for _, line := range strings.Split(result, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "No ephemeris") || strings.HasPrefix(line, "!") ||
			strings.Contains(strings.ToLower(line), "error") {
			return line
		}
	}
	return "no ephemeris table in response"
}

// parseVectorLabeled parses: X = 1.23E+00 Y =-2.34E+00 Z = 3.45E-01
func parseVectorLabeled(line string) (astro.Vec3, error) {
	// Split on = and parse pairs
	parts := strings.Split(line, "=")
	if len(parts) < 4 {
		return astro.Vec3{}, fmt.Errorf("invalid labeled format")
	}

	// parts[1] contains "X_value Y", parts[2] contains "Y_value Z", parts[3] contains "Z_value"
	var vals [3]float64
	for i := 0; i < 3; i++ {
		fields := strings.Fields(parts[i+1])
		if len(fields) == 0 {
			return astro.Vec3{}, fmt.Errorf("missing value in %q", line)
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return astro.Vec3{}, err
		}
		vals[i] = v
	}

	return astro.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// parseVectorUnlabeled parses: 1.23E+00  2.34E+00  3.45E-01
func parseVectorUnlabeled(line string) (astro.Vec3, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return astro.Vec3{}, fmt.Errorf("insufficient fields: %d", len(fields))
	}

	var vals [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return astro.Vec3{}, err
		}
		vals[i] = v
	}

	return astro.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}
