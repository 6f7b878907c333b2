package ports

import (
	"context"

	"github.com/bnema/agentmon/internal/domain"
)

type UsageFetcher interface {
	Fetch(ctx context.Context) (domain.Usage, error)
}
