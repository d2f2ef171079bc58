package circleci

import (
	"context"
	"strings"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/metrics"
	"github.com/NEAR-Edu/contract-registry/internal/tracing"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	ArtifactRepository = "git/repository.txt"
	ArtifactRemote     = "git/remote.txt"
	ArtifactBranch     = "git/branch.txt"
	ArtifactCommit     = "git/commit.txt"
	ArtifactCode       = "out/out.wasm"
)

// textArtifacts are fetched concurrently; order matches the fields of the result.
var textArtifacts = []string{ArtifactRepository, ArtifactRemote, ArtifactBranch, ArtifactCommit}

var requiredArtifacts = []string{ArtifactRepository, ArtifactRemote, ArtifactBranch, ArtifactCommit, ArtifactCode}

// MaxFetchConcurrency caps parallel artifact downloads per job.
const MaxFetchConcurrency = 2

// Assembly is an assembled result plus the exact binary it was hashed from.
// The result's RequestID is left for the caller to set.
type Assembly struct {
	Result domain.VerificationResult
	Code   []byte
}

type Assembler struct {
	client      *Client
	concurrency int
}

func NewAssembler(client *Client, concurrency int) *Assembler {
	if concurrency <= 0 || concurrency > MaxFetchConcurrency {
		concurrency = MaxFetchConcurrency
	}
	return &Assembler{client: client, concurrency: concurrency}
}

// Assemble fetches the job manifest, the four git metadata files and the compiled
// binary, and hashes the binary. Errors are *ProviderError and are never retried here.
func (a *Assembler) Assemble(ctx context.Context, jobNumber string) (Assembly, error) {
	ctx, span := tracing.Start(ctx, "circleci", "Assemble", attribute.String("circleci.job", jobNumber))

	start := time.Now()
	out, err := a.assemble(ctx, jobNumber)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	tracing.End(span, err)
	metrics.AssemblyLatencySeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return out, err
}

func (a *Assembler) assemble(ctx context.Context, jobNumber string) (Assembly, error) {
	manifest, err := a.client.Artifacts(ctx, jobNumber)
	if err != nil {
		metrics.ArtifactFetchesTotal.WithLabelValues("manifest", "failure").Inc()
		return Assembly{}, err
	}
	metrics.ArtifactFetchesTotal.WithLabelValues("manifest", "success").Inc()

	for _, p := range requiredArtifacts {
		if _, ok := manifest[p]; !ok {
			return Assembly{}, &ProviderError{Kind: ErrMissingArtifact, Op: "assemble", Path: p}
		}
	}

	texts := make([]string, len(textArtifacts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, p := range textArtifacts {
		g.Go(func() error {
			body, err := a.client.Fetch(gctx, manifest[p], p)
			if err != nil {
				metrics.ArtifactFetchesTotal.WithLabelValues("text", "failure").Inc()
				return err
			}
			metrics.ArtifactFetchesTotal.WithLabelValues("text", "success").Inc()
			texts[i] = strings.TrimSpace(string(body))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Assembly{}, err
	}

	codeURL := manifest[ArtifactCode]
	code, err := a.client.Fetch(ctx, codeURL, ArtifactCode)
	if err != nil {
		metrics.ArtifactFetchesTotal.WithLabelValues("binary", "failure").Inc()
		return Assembly{}, err
	}
	metrics.ArtifactFetchesTotal.WithLabelValues("binary", "success").Inc()

	return Assembly{
		Result: domain.VerificationResult{
			CodeHash:   domain.HashBytes(code),
			CodeURL:    codeURL,
			Repository: texts[0],
			Remote:     texts[1],
			Branch:     texts[2],
			Commit:     texts[3],
		},
		Code: code,
	}, nil
}
