package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/amirphl/Tamamo-no-Mae/repository"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"go.uber.org/zap"
)

// UnsubscribeFlow opts a client out of newsletters through a signed link
type UnsubscribeFlow interface {
	Unsubscribe(ctx context.Context, req *dto.UnsubscribeRequest) error
}

type UnsubscribeFlowImpl struct {
	clientRepo repository.ClientRepository
	signer     *services.UnsubscribeSigner
	logger     *zap.Logger
	now        func() time.Time
}

func NewUnsubscribeFlow(clientRepo repository.ClientRepository, signer *services.UnsubscribeSigner, logger *zap.Logger) UnsubscribeFlow {
	return &UnsubscribeFlowImpl{
		clientRepo: clientRepo,
		signer:     signer,
		logger:     logger.Named("unsubscribe"),
		now:        utils.UTCNow,
	}
}

// Unsubscribe is idempotent: an already opted-out client succeeds again
func (f *UnsubscribeFlowImpl) Unsubscribe(ctx context.Context, req *dto.UnsubscribeRequest) error {
	if f.signer == nil || !f.signer.Verify(req.ClientID, req.Token) {
		return NewBusinessError("INVALID_UNSUBSCRIBE_TOKEN", "Unsubscribe link is invalid", ErrInvalidUnsubscribeToken)
	}

	client, err := f.clientRepo.ByID(ctx, req.ClientID)
	if err != nil {
		return NewBusinessError("CLIENT_FETCH_FAILED", "Failed to load client", err)
	}
	if client == nil {
		return NewBusinessError("CLIENT_NOT_FOUND", "Client not found", ErrClientNotFound)
	}
	if client.NewsletterOptOut {
		return nil
	}

	if err := f.clientRepo.MarkNewsletterOptOut(ctx, client.ID, f.now()); err != nil {
		return NewBusinessError("UNSUBSCRIBE_FAILED", "Failed to store newsletter opt-out", err)
	}
	loggerFrom(ctx, f.logger).Info("client opted out of newsletters", zap.Uint("client_id", client.ID))
	return nil
}
