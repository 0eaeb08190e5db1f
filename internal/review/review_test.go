package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/smart-captures/internal/classifier"
	"github.com/Veraticus/smart-captures/internal/common"
	"github.com/Veraticus/smart-captures/internal/llm"
	"github.com/Veraticus/smart-captures/internal/model"
	"github.com/Veraticus/smart-captures/internal/queue"
	"github.com/Veraticus/smart-captures/internal/service"
	"github.com/Veraticus/smart-captures/internal/storage"
	"github.com/Veraticus/smart-captures/internal/testutil"
)

type stubRefiner struct {
	err     error
	started chan struct{}
	release chan struct{}
	out     llm.Extraction
}

func (s *stubRefiner) Refine(_ context.Context, _ string) (llm.Extraction, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return s.out, s.err
}

type fixture struct {
	queue    *queue.Queue
	ledger   *testutil.MemoryLedger
	workflow *Workflow
}

func newFixture(t *testing.T, refiner Refiner) *fixture {
	t.Helper()
	return newFixtureWithClassifier(t, refiner, classifier.NewKeyword(), 0)
}

func newFixtureWithClassifier(t *testing.T, refiner Refiner, c classifier.Classifier, minConfidence float64) *fixture {
	t.Helper()
	q := queue.New(storage.NewMemoryKV(), "", testutil.FixedClock(), common.DiscardLogger())
	require.NoError(t, q.Load(context.Background()))
	ledger := testutil.NewMemoryLedger()
	return &fixture{
		queue:    q,
		ledger:   ledger,
		workflow: New(q, ledger, c, refiner, Config{UserID: "user-1", MinConfidence: minConfidence}, common.DiscardLogger()),
	}
}

func (f *fixture) add(t *testing.T, nc queue.NewCandidate) model.PendingCandidate {
	t.Helper()
	if nc.RawText == "" {
		nc.RawText = testutil.BodyZomatoDebit
	}
	if nc.Amount.IsZero() {
		nc.Amount = decimal.RequireFromString("1250.50")
	}
	c, err := f.queue.Add(context.Background(), nc)
	require.NoError(t, err)
	return c
}

func (f *fixture) status(t *testing.T, id string) model.CandidateStatus {
	t.Helper()
	c, ok := f.queue.Get(id)
	require.True(t, ok)
	return c.Status
}

func TestAccept_UsesExtractedFields(t *testing.T) {
	f := newFixture(t, nil)
	occurred := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	c := f.add(t, queue.NewCandidate{Title: "Zomato on 05-01-2024", OccurredAt: occurred})

	txn, err := f.workflow.Accept(context.Background(), c.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, "user-1", txn.UserID)
	assert.Equal(t, "Zomato on 05-01-2024", txn.Name)
	assert.True(t, decimal.RequireFromString("1250.50").Equal(txn.Amount))
	assert.True(t, occurred.Equal(txn.Date))
	assert.Equal(t, model.CategoryFood, txn.Category, "keyword classifier fills the missing suggestion")
	assert.Equal(t, model.TransactionSourceSMS, txn.Source)
	assert.Equal(t, c.ID, txn.SourceRef)
	assert.Equal(t, model.StatusAdded, f.status(t, c.ID))
}

func TestAccept_CategoryPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		refined  string
		stored   string
		rawText  string
		expected string
	}{
		{name: "refiner wins", refined: "travel", stored: model.CategoryShopping, expected: model.CategoryTravel},
		{name: "unknown refined falls to stored", refined: "groceries", stored: model.CategoryShopping, expected: model.CategoryShopping},
		{name: "classifier when nothing stored", rawText: testutil.BodyUberUPI, expected: model.CategoryTravel},
		{name: "misc when classifier has nothing", rawText: "Rs 900 debited from a/c XX12", expected: model.CategoryMisc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &stubRefiner{out: llm.Extraction{Category: tt.refined}})
			c := f.add(t, queue.NewCandidate{
				RawText:           tt.rawText,
				Amount:            decimal.NewFromInt(900),
				SuggestedCategory: tt.stored,
			})

			txn, err := f.workflow.Accept(context.Background(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, txn.Category)
		})
	}
}

type fixedClassifier struct {
	suggestion model.Suggestion
}

func (c fixedClassifier) Classify(context.Context, string, *decimal.Decimal) model.Suggestion {
	return c.suggestion
}

func TestAccept_ClassifierConfidenceThreshold(t *testing.T) {
	tests := []struct {
		name          string
		suggestion    model.Suggestion
		minConfidence float64
		expected      string
	}{
		{
			name:       "weak guess ignored",
			suggestion: model.Suggestion{Category: model.CategoryShopping, Confidence: 0.05, Source: model.SuggestionSourceLLM},
			expected:   model.CategoryMisc,
		},
		{
			name:          "keyword fallback below raised threshold",
			suggestion:    model.Suggestion{Category: model.CategoryFood, Confidence: 0.55, Source: model.SuggestionSourceKeyword},
			minConfidence: 0.8,
			expected:      model.CategoryMisc,
		},
		{
			name:          "confident suggestion applied",
			suggestion:    model.Suggestion{Category: model.CategoryShopping, Confidence: 0.9, Source: model.SuggestionSourceLLM},
			minConfidence: 0.8,
			expected:      model.CategoryShopping,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixtureWithClassifier(t, nil, fixedClassifier{suggestion: tt.suggestion}, tt.minConfidence)
			c := f.add(t, queue.NewCandidate{RawText: "Rs 900 debited from a/c XX12", Amount: decimal.NewFromInt(900)})

			txn, err := f.workflow.Accept(context.Background(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, txn.Category)
		})
	}
}

func TestAccept_RefinedFieldsOverride(t *testing.T) {
	refinedAmount := decimal.RequireFromString("1300")
	refinedDate := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	f := newFixture(t, &stubRefiner{out: llm.Extraction{
		Name:     "Zomato",
		Amount:   &refinedAmount,
		Date:     refinedDate,
		Category: "Food",
	}})
	c := f.add(t, queue.NewCandidate{Bank: "HDFC"})

	txn, err := f.workflow.Accept(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zomato", txn.Name)
	assert.True(t, refinedAmount.Equal(txn.Amount))
	assert.True(t, refinedDate.Equal(txn.Date))
}

func TestAccept_RefinerFailureFallsBack(t *testing.T) {
	f := newFixture(t, &stubRefiner{err: errors.New("model unavailable")})
	c := f.add(t, queue.NewCandidate{Bank: "HDFC"})

	txn, err := f.workflow.Accept(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "HDFC", txn.Name)
	assert.Equal(t, model.StatusAdded, f.status(t, c.ID))
}

func TestAccept_DefaultName(t *testing.T) {
	f := newFixture(t, nil)
	c := f.add(t, queue.NewCandidate{})

	txn, err := f.workflow.Accept(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultName, txn.Name)
}

func TestAccept_LedgerFailureKeepsPending(t *testing.T) {
	f := newFixture(t, nil)
	c := f.add(t, queue.NewCandidate{})
	ctx := context.Background()

	f.ledger.FailCreates(errors.New("connection refused"))
	_, err := f.workflow.Accept(ctx, c.ID)
	require.Error(t, err)

	var userErr *common.UserError
	assert.True(t, errors.As(err, &userErr))
	assert.Equal(t, model.StatusPending, f.status(t, c.ID))

	f.ledger.FailCreates(nil)
	txn, err := f.workflow.Accept(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, txn.SourceRef)
	assert.Equal(t, model.StatusAdded, f.status(t, c.ID))
	assert.Equal(t, 2, f.ledger.CreateCalls())
}

func TestAccept_RetryAfterLedgerWriteIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	c := f.add(t, queue.NewCandidate{})
	ctx := context.Background()

	// Simulate a ledger write that landed although the caller never saw it.
	first, err := f.ledger.CreateTransaction(ctx, model.Transaction{
		Name:      "earlier attempt",
		Amount:    c.Amount,
		Date:      c.OccurredAt,
		Category:  model.CategoryFood,
		Source:    model.TransactionSourceSMS,
		SourceRef: c.ID,
	})
	require.NoError(t, err)

	txn, err := f.workflow.Accept(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, txn.ID)

	rows, err := f.ledger.ListTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAccept_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.workflow.Accept(ctx, "sms_missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	c := f.add(t, queue.NewCandidate{})
	require.NoError(t, f.workflow.Reject(ctx, c.ID))

	_, err = f.workflow.Accept(ctx, c.ID)
	assert.ErrorIs(t, err, common.ErrNotPending)
	assert.Equal(t, 0, f.ledger.CreateCalls())
}

func TestAccept_InFlightGuard(t *testing.T) {
	refiner := &stubRefiner{started: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, refiner)
	c := f.add(t, queue.NewCandidate{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.workflow.Accept(ctx, c.ID)
		done <- err
	}()
	<-refiner.started

	_, err := f.workflow.Accept(ctx, c.ID)
	assert.ErrorIs(t, err, common.ErrInFlight)
	assert.ErrorIs(t, f.workflow.Reject(ctx, c.ID), common.ErrInFlight)

	close(refiner.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.ledger.CreateCalls())
	assert.Equal(t, model.StatusAdded, f.status(t, c.ID))
}

func TestReject(t *testing.T) {
	f := newFixture(t, nil)
	c := f.add(t, queue.NewCandidate{})
	ctx := context.Background()

	require.NoError(t, f.workflow.Reject(ctx, c.ID))
	assert.Equal(t, model.StatusIgnored, f.status(t, c.ID))
	assert.ErrorIs(t, f.workflow.Reject(ctx, c.ID), common.ErrNotPending)
	assert.Empty(t, f.queue.ListPending())
	assert.Len(t, f.queue.List(), 1)
}

type fakeClient struct {
	reply  string
	err    error
	prompt string
}

func (c *fakeClient) Complete(_ context.Context, _, prompt string) (string, error) {
	c.prompt = prompt
	return c.reply, c.err
}

func TestLLMRefiner(t *testing.T) {
	client := &fakeClient{reply: "```json\n{\"amount\": 1250.5, \"category\": \"Food\", \"date\": \"2024-01-05\", \"name\": \"Zomato\"}\n```"}
	out, err := NewLLMRefiner(client).Refine(context.Background(), testutil.BodyZomatoDebit)
	require.NoError(t, err)

	assert.Contains(t, client.prompt, testutil.BodyZomatoDebit)
	assert.Equal(t, "Zomato", out.Name)
	assert.Equal(t, "Food", out.Category)
	require.NotNil(t, out.Amount)
	assert.Equal(t, "1250.5", out.Amount.String())
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), out.Date)

	client.err = errors.New("boom")
	_, err = NewLLMRefiner(client).Refine(context.Background(), "x")
	assert.Error(t, err)
}
