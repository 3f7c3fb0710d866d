package analyses

import (
	"context"
	"sync"
	"testing"
	"time"

	"coach-backend/internal/llm"
	"coach-backend/internal/queue"
	"coach-backend/internal/quota"
	"coach-backend/internal/shared/storage/object/local"
	"coach-backend/internal/textstats"
	"coach-backend/internal/transcripts"
)

const (
	testUser = "guest:g1"

	sampleSRT = "1\n00:00:01,000 --> 00:00:04,000\nThanks so much, I love this look.\n\n2\n00:00:05,000 --> 00:00:09,000\nWhat budget range works for you?\n"

	validReply = `{
  "summary": "Warm consult with a clear next step.",
  "topics": ["trial", "pricing"],
  "sentiment_score": 72,
  "strengths": ["Confident rapport"],
  "improvements": ["Confirm the date earlier"],
  "coaching_tips": ["Restate the investment before booking"],
  "client_intent": {"occasion": "wedding", "date_mentions": ["June"], "decision_timing": "this week", "primary_motivation": "calm morning"},
  "consult_scorecard": {"authority_and_leadership": 8},
  "conversion_risks": [],
  "missed_questions": [],
  "recommended_micro_scripts": [],
  "timeline": [{"timestamp": "00:00:05", "type": "pricing", "description": "Budget question"}]
}`
)

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	models  []string
	calls   int
	fixes   int
}

func (f *fakeLLM) Analyze(ctx context.Context, req llm.AnalyzeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if _, ok := llm.FixJSONFromContext(ctx); ok {
		f.fixes++
	}
	if sink, ok := llm.PromptHashSinkFromContext(ctx); ok {
		*sink = llm.HashPrompt(llm.AnalysisPrompt(ctx, req))
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return validReply, nil
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	return "ok", nil
}

func (f *fakeLLM) Models() []string { return f.models }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []queue.Message
	err  error
}

func (q *fakeQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

type testEnv struct {
	svc         *Service
	repo        *MemoryRepo
	transcripts *transcripts.Service
	llm         *fakeLLM
	transcript  transcripts.Transcript
}

func newTestEnv(t *testing.T, limit int) *testEnv {
	t.Helper()
	llm.RetryDelay = time.Millisecond

	trSvc := &transcripts.Service{
		Store:       local.New(t.TempDir()),
		Repo:        transcripts.NewMemoryRepo(),
		Stats:       textstats.New(textstats.DefaultWordsPerMinute),
		DefaultLens: "bridal",
	}
	tr, err := trSvc.Upload(context.Background(), testUser, "consult.srt", "", []byte(sampleSRT))
	if err != nil {
		t.Fatalf("upload transcript: %v", err)
	}

	fake := &fakeLLM{}
	repo := NewMemoryRepo()
	svc := &Service{
		Repo:        repo,
		Transcripts: trSvc,
		Quota:       quota.NewService(quota.Policy{Limit: limit, Window: time.Hour}),
		LLM:         fake,
		Provider:    "gemini",
		Model:       "gemini-2.5-flash",
	}
	return &testEnv{svc: svc, repo: repo, transcripts: trSvc, llm: fake, transcript: tr}
}

func (e *testEnv) queued(t *testing.T, id string) Analysis {
	t.Helper()
	a := Analysis{
		ID:           id,
		TranscriptID: e.transcript.ID,
		UserID:       testUser,
		Lens:         "bridal",
		Provider:     "gemini",
		Model:        "gemini-2.5-flash",
		Status:       StatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.repo.Create(context.Background(), a); err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	return a
}

func waitTerminal(t *testing.T, repo Repo, id string) Analysis {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a, err := repo.GetByID(context.Background(), id)
		if err == nil && a.Terminal() {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("analysis %s did not finish", id)
	return Analysis{}
}
