package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/4ndersonLin/scamledger/internal/retry"
	"github.com/4ndersonLin/scamledger/internal/validation"
)

// SourceOFAC identifies the OFAC SDN digital-currency denylist.
const SourceOFAC = "ofac_sdn"

// DefaultOFACBaseURL hosts per-currency JSON lists of sanctioned addresses.
const DefaultOFACBaseURL = "https://raw.githubusercontent.com/0xB10C/ofac-sanctioned-digital-currency-addresses/lists"

// ofacChains maps OFAC currency file names onto chain identifiers.
// Several ERC-20 listings collapse onto ETH.
var ofacChains = map[string]validation.Chain{
	"XBT":   validation.ChainBTC,
	"ETH":   validation.ChainETH,
	"USDT":  validation.ChainETH,
	"USDC":  validation.ChainETH,
	"SOL":   validation.ChainSOL,
	"TRX":   validation.ChainTRON,
	"BSC":   validation.ChainBSC,
	"MATIC": validation.ChainMATIC,
}

type ofacEntry struct {
	Address  string   `json:"address"`
	IDPrefix string   `json:"id_prefix"`
	Programs []string `json:"programs"`
}

// OFACFetcher pulls the per-currency sub-feeds of the OFAC SDN list.
type OFACFetcher struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewOFACFetcher creates the OFAC feed fetcher. baseURL defaults to the
// published list location when empty.
func NewOFACFetcher(baseURL string, logger *slog.Logger) *OFACFetcher {
	if baseURL == "" {
		baseURL = DefaultOFACBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OFACFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (f *OFACFetcher) Source() string { return SourceOFAC }

// Fetch walks every currency sub-feed with a conditional request. A 304
// means that sub-feed is unchanged; a 404 or any other failure skips the
// sub-feed without failing the run. The newest ETag seen wins.
func (f *OFACFetcher) Fetch(ctx context.Context, state *SyncState) (*FetchResult, error) {
	var lastETag string
	if state != nil && state.LastETag != nil {
		lastETag = *state.LastETag
	}

	currencies := make([]string, 0, len(ofacChains))
	for currency := range ofacChains {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	result := &FetchResult{}
	for _, currency := range currencies {
		entries, etag, err := f.fetchSubFeed(ctx, currency, lastETag)
		if err != nil {
			f.logger.Warn("ofac sub-feed fetch failed, skipping",
				"currency", currency, "error", err)
			continue
		}
		if etag != "" {
			result.NewETag = etag
		}

		chain := ofacChains[currency]
		for _, entry := range entries {
			result.Records = append(result.Records, normalizeOFACEntry(chain, entry))
		}
	}
	return result, nil
}

// fetchSubFeed returns (nil, "", nil) for 304 and 404: no new data, not an
// error. Network failures and 5xx answers are retried with backoff; other
// statuses and malformed bodies are permanent.
func (f *OFACFetcher) fetchSubFeed(ctx context.Context, currency, lastETag string) ([]ofacEntry, string, error) {
	var entries []ofacEntry
	var etag string

	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		url := fmt.Sprintf("%s/%s.json", f.baseURL, currency)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		if lastETag != "" {
			req.Header.Set("If-None-Match", lastETag)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotModified:
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return nil
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return retry.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &entries); err != nil {
			return retry.Permanent(fmt.Errorf("malformed feed body: %w", err))
		}
		etag = resp.Header.Get("ETag")
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return entries, etag, nil
}

func normalizeOFACEntry(chain validation.Chain, entry ofacEntry) *Record {
	description := ""
	if len(entry.Programs) > 0 {
		description = "OFAC Programs: " + strings.Join(entry.Programs, ", ")
	}
	return &Record{
		Source:      SourceOFAC,
		Chain:       chain,
		Address:     validation.SanitizeAddress(chain, entry.Address),
		ExternalID:  entry.IDPrefix,
		Category:    "OFAC_SDN",
		Description: description,
		Confidence:  ConfidenceConfirmed,
	}
}
