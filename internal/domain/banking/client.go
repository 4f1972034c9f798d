package banking

import "context"

// TokenClient is the slice of the aggregator API used by the session
// resolver: the client-credential exchange and the refresh exchange.
// The two calls are kept separate because their failure handling differs;
// the resolver composes them.
type TokenClient interface {
	NewToken(ctx context.Context) (*TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AccessGrant, error)
}

// AggregatorClient is the full aggregator API surface consumed by the
// linking service. Implemented by the gocardless infrastructure client.
type AggregatorClient interface {
	TokenClient
	Institutions(ctx context.Context, accessToken, country string) ([]Institution, error)
	CreateEndUserAgreement(ctx context.Context, accessToken, institutionID string) (string, error)
	CreateRequisition(ctx context.Context, accessToken, institutionID, redirectURL, agreementID, reference string) (id, link string, err error)
	Requisition(ctx context.Context, accessToken, requisitionID string) ([]string, error)
	AccountTransactions(ctx context.Context, accessToken, accountID string) (*TransactionPage, error)
}
