package pje

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/crawjud/pje-pipeline/internal/progress"
)

// ResolverConfig bounds the captcha retry loop.
type ResolverConfig struct {
	// MaxAttempts caps solve attempts per process (default 15).
	MaxAttempts int
	// BackoffMin and BackoffMax bound the randomized sleep between
	// rejected answers (defaults 3s and 7s).
	BackoffMin time.Duration
	BackoffMax time.Duration
}

const (
	defaultMaxAttempts = 15
	defaultBackoffMin  = 3 * time.Second
	defaultBackoffMax  = 7 * time.Second
)

// challengePayload is the portal's image-captcha challenge. It is consumed
// once per solve attempt; a rejected answer carries the next challenge in
// its response body.
type challengePayload struct {
	Imagem       string `json:"imagem"`
	TokenDesafio string `json:"tokenDesafio"`
}

// ChallengeResolver resolves the image captcha gating access to a
// process's data, with bounded retries.
type ChallengeResolver struct {
	solver   CaptchaSolver
	reporter progress.Emitter
	logger   *zap.Logger
	cfg      ResolverConfig

	// sleep is replaceable in tests to skip the real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewChallengeResolver builds a resolver around the given solver.
func NewChallengeResolver(solver CaptchaSolver, reporter progress.Emitter, logger *zap.Logger, cfg ResolverConfig) *ChallengeResolver {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = defaultBackoffMin
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = defaultBackoffMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeResolver{
		solver:   solver,
		reporter: reporter,
		logger:   logger,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Resolve fetches the captcha challenge for processID, solves it and
// submits the answer, retrying with backoff until the portal accepts the
// answer or the attempt budget runs out.
//
// Only the first attempt fetches /captcha; a rejected submission already
// carries the next imagem/tokenDesafio pair, which later attempts reuse.
// A 403 during submission is fatal for the whole attempt chain.
func (r *ChallengeResolver) Resolve(ctx context.Context, client *resty.Client, pid string, row int, processID string) (*SearchResult, error) {
	var challenge challengePayload
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt == 0 {
			fetched, err := r.fetchChallenge(ctx, client, processID)
			if err != nil {
				return nil, err
			}
			challenge = fetched
		}

		image, err := decodeChallengeImage(challenge.Imagem)
		if err != nil {
			return nil, fmt.Errorf("decode captcha image: %w", err)
		}
		answer, err := r.solver.Solve(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("solve captcha: %w", err)
		}

		resp, err := client.R().
			SetContext(ctx).
			SetQueryParam("tokenDesafio", challenge.TokenDesafio).
			SetQueryParam("resposta", answer).
			Get("/processos/" + processID)
		if err != nil {
			return nil, fmt.Errorf("submit captcha answer: %w", err)
		}
		if resp.StatusCode() == http.StatusForbidden {
			return nil, &FatalError{StatusCode: resp.StatusCode()}
		}

		var doc map[string]any
		if err := json.Unmarshal(resp.Body(), &doc); err != nil {
			return nil, fmt.Errorf("parse process document: %w", err)
		}

		if imagem, rejected := doc["imagem"].(string); rejected && imagem != "" {
			challenge.Imagem = imagem
			if token, ok := doc["tokenDesafio"].(string); ok && token != "" {
				challenge.TokenDesafio = token
			}
			r.logger.Debug("captcha answer rejected",
				zap.String("process_id", processID),
				zap.Int("attempt", attempt+1),
			)
			if attempt+1 < r.cfg.MaxAttempts {
				if err := r.sleep(ctx, r.backoff()); err != nil {
					return nil, err
				}
			}
			continue
		}

		r.reporter.Emit(progress.NewEvent(pid, row, progress.TypeLog, "processo encontrado, salvando dados..."))
		return &SearchResult{
			ProcessID:    processID,
			CaptchaToken: resp.Header().Get("captchatoken"),
			SolvedText:   answer,
			ProcessData:  doc,
		}, nil
	}
	return nil, ErrCaptchaExhausted
}

func (r *ChallengeResolver) fetchChallenge(ctx context.Context, client *resty.Client, processID string) (challengePayload, error) {
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParam("idProcesso", processID).
		Get("/captcha")
	if err != nil {
		return challengePayload{}, fmt.Errorf("fetch captcha challenge: %w", err)
	}
	return decodeChallenge(resp.Body())
}

// decodeChallenge parses a challenge response, which is either a single
// object or an array whose last element has the challenge shape.
func decodeChallenge(body []byte) (challengePayload, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var list []challengePayload
		if err := json.Unmarshal(body, &list); err != nil {
			return challengePayload{}, fmt.Errorf("parse captcha challenge list: %w", err)
		}
		if len(list) == 0 {
			return challengePayload{}, fmt.Errorf("captcha challenge list is empty")
		}
		return list[len(list)-1], nil
	}
	var payload challengePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return challengePayload{}, fmt.Errorf("parse captcha challenge: %w", err)
	}
	return payload, nil
}

// decodeChallengeImage accepts either raw base64 or a data URI.
func decodeChallengeImage(imagem string) ([]byte, error) {
	if imagem == "" {
		return nil, fmt.Errorf("challenge has no image")
	}
	if idx := strings.Index(imagem, "base64,"); idx >= 0 {
		imagem = imagem[idx+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(imagem)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return data, nil
}

// backoff picks a random duration in [BackoffMin, BackoffMax].
func (r *ChallengeResolver) backoff() time.Duration {
	spread := r.cfg.BackoffMax - r.cfg.BackoffMin
	if spread <= 0 {
		return r.cfg.BackoffMin
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(spread)))
	if err != nil {
		return r.cfg.BackoffMin + spread/2
	}
	return r.cfg.BackoffMin + time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("captcha backoff wait: %w", ctx.Err())
	}
}
