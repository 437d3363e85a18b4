package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Resultados possíveis de uma verificação de liquidação
const (
	VerificationSuccess = "success"
	VerificationFailure = "failure"
	VerificationPending = "pending"
)

// Challenge é o artefato de pagamento apresentado ao comprador:
// o payload KHQR escaneável e a referência opaca de liquidação.
type Challenge struct {
	Reference   string `json:"reference"`
	Payload     string `json:"payload"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// PaymentGateway abstrai o trilho de pagamento externo.
// RequestChallenge não tem efeitos colaterais sobre o ledger de pedidos;
// Verify é uma consulta pontual de status, sem retry próprio.
type PaymentGateway interface {
	RequestChallenge(ctx context.Context, amountCents int64, orderID int64) (*Challenge, error)
	Verify(ctx context.Context, reference string) (string, error)
}

// BakongGateway implementa PaymentGateway contra a API KHQR do Bakong
type BakongGateway struct {
	client     *resty.Client
	merchantID string
}

// NewBakongGateway cria uma nova instância de BakongGateway
func NewBakongGateway(baseURL, apiKey, merchantID string) *BakongGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	return &BakongGateway{
		client:     client,
		merchantID: merchantID,
	}
}

// RequestChallenge gera o payload KHQR e a referência de liquidação.
// O payload é montado localmente, como no fluxo Bakong: o QR carrega os
// dados do merchant e o banco concilia pela referência.
func (g *BakongGateway) RequestChallenge(_ context.Context, amountCents int64, orderID int64) (*Challenge, error) {
	reference := fmt.Sprintf("txn_%d_%s", orderID, uuid.New().String()[:8])

	return &Challenge{
		Reference:   reference,
		Payload:     FormatKHQRPayload(g.merchantID, amountCents, DefaultCurrency, orderID),
		AmountCents: amountCents,
		Currency:    DefaultCurrency,
	}, nil
}

type bakongTransactionResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// Verify consulta o status da transação no trilho externo
func (g *BakongGateway) Verify(ctx context.Context, reference string) (string, error) {
	var result bakongTransactionResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/transactions/" + reference)
	if err != nil {
		return "", fmt.Errorf("failed to verify payment: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("payment verification failed with status %d", resp.StatusCode())
	}

	switch result.Status {
	case "success", "completed":
		return VerificationSuccess, nil
	case "pending":
		return VerificationPending, nil
	default:
		return VerificationFailure, nil
	}
}

// MockGateway implementa PaymentGateway para testes e modo standalone.
// Por padrão toda verificação retorna sucesso; o resultado e o erro
// podem ser configurados por teste.
type MockGateway struct {
	mu           sync.Mutex
	result       string
	err          error
	challengeErr error
	verifyCalls  map[string]int
}

// NewMockGateway cria um gateway simulado que aprova todos os pagamentos
func NewMockGateway() *MockGateway {
	log.Printf("⚠️  Mock payment gateway initialized (no real settlement)")
	return &MockGateway{
		result:      VerificationSuccess,
		verifyCalls: make(map[string]int),
	}
}

// SetVerifyResult configura o resultado das próximas verificações
func (g *MockGateway) SetVerifyResult(result string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.result = result
}

// SetVerifyError configura um erro de gateway nas próximas verificações
func (g *MockGateway) SetVerifyError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// SetChallengeError configura um erro na emissão de desafios
func (g *MockGateway) SetChallengeError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.challengeErr = err
}

// VerifyCalls retorna quantas vezes a referência foi verificada
func (g *MockGateway) VerifyCalls(reference string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls[reference]
}

// RequestChallenge gera um desafio simulado
func (g *MockGateway) RequestChallenge(_ context.Context, amountCents int64, orderID int64) (*Challenge, error) {
	g.mu.Lock()
	challengeErr := g.challengeErr
	g.mu.Unlock()
	if challengeErr != nil {
		return nil, challengeErr
	}

	return &Challenge{
		Reference:   fmt.Sprintf("txn_%d", orderID),
		Payload:     FormatKHQRPayload("MOCK_MERCHANT", amountCents, DefaultCurrency, orderID),
		AmountCents: amountCents,
		Currency:    DefaultCurrency,
	}, nil
}

// Verify retorna o resultado configurado
func (g *MockGateway) Verify(_ context.Context, reference string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls[reference]++
	if g.err != nil {
		return "", g.err
	}
	return g.result, nil
}
