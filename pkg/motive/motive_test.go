package motive

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ai"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/leaselock"
)

type memAnalysis struct {
	mu sync.Mutex

	runs     map[string]common.AnalysisRun
	rows     []common.TranscriptRow
	progress map[string]common.MotiveProgress
	history  map[string][]int
	results  map[string]common.MotiveResult
	cache    map[string]common.MotiveCache
	errors   []common.ErrorEntry

	cacheWrites    int
	failMessagesOf string
	failProgress   bool
}

func newMemAnalysis() *memAnalysis {
	return &memAnalysis{
		runs:     map[string]common.AnalysisRun{},
		progress: map[string]common.MotiveProgress{},
		history:  map[string][]int{},
		results:  map[string]common.MotiveResult{},
		cache:    map[string]common.MotiveCache{},
	}
}

func (m *memAnalysis) CreateRun(ctx context.Context, tenantID string) (common.AnalysisRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := common.AnalysisRun{ID: "run-1", TenantID: tenantID, Status: common.RunStatusPending}
	m.runs[run.ID] = run
	return run, nil
}

func (m *memAnalysis) ImportTranscriptRows(ctx context.Context, rows []common.TranscriptRow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return int64(len(rows)), nil
}

func (m *memAnalysis) GetRun(ctx context.Context, runID, tenantID string) (*common.AnalysisRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.TenantID != tenantID {
		return nil, nil
	}
	return &run, nil
}

func (m *memAnalysis) SetRunStatus(ctx context.Context, runID string, status common.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.Status != common.RunStatusPending {
		return nil
	}
	run.Status = status
	m.runs[runID] = run
	return nil
}

func (m *memAnalysis) ListMotives(ctx context.Context, runID string) ([]common.MotiveCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := map[string]map[string]struct{}{}
	for _, r := range m.rows {
		if r.RunID != runID {
			continue
		}
		if ids[r.Motive] == nil {
			ids[r.Motive] = map[string]struct{}{}
		}
		ids[r.Motive][r.AttendanceID] = struct{}{}
	}
	var out []common.MotiveCount
	for motive, set := range ids {
		out = append(out, common.MotiveCount{Motive: motive, Total: len(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Motive < out[j].Motive })
	return out, nil
}

func (m *memAnalysis) ListAttendanceIDs(ctx context.Context, runID, motive string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, r := range m.rows {
		if r.RunID != runID || r.Motive != motive {
			continue
		}
		if _, ok := seen[r.AttendanceID]; ok {
			continue
		}
		seen[r.AttendanceID] = struct{}{}
		out = append(out, r.AttendanceID)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memAnalysis) ListMessages(ctx context.Context, runID, motive, attendanceID string) ([]common.TranscriptRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attendanceID == m.failMessagesOf {
		return nil, errors.New("messages unavailable")
	}
	var out []common.TranscriptRow
	for _, r := range m.rows {
		if r.RunID == runID && r.Motive == motive && r.AttendanceID == attendanceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memAnalysis) GetProgress(ctx context.Context, runID, motive string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress[runID+"/"+motive].ProcessedIDsDistinct, nil
}

func (m *memAnalysis) SetProgress(ctx context.Context, p common.MotiveProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failProgress {
		return errors.New("database down")
	}
	key := p.RunID + "/" + p.Motive
	m.progress[key] = p
	m.history[key] = append(m.history[key], p.ProcessedIDsDistinct)
	return nil
}

func (m *memAnalysis) UpsertResult(ctx context.Context, result common.MotiveResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.RunID+"/"+result.Motive] = result
	return nil
}

func (m *memAnalysis) GetCache(ctx context.Context, tenantID, motive string) (*common.MotiveCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cache[tenantID+"/"+motive]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memAnalysis) UpsertCache(ctx context.Context, cache common.MotiveCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheWrites++
	m.cache[cache.TenantID+"/"+cache.Motive] = cache
	return nil
}

func (m *memAnalysis) AppendError(ctx context.Context, entry common.ErrorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, entry)
	return nil
}

func (m *memAnalysis) GetRunReport(ctx context.Context, runID, tenantID string) (*common.RunReport, error) {
	return nil, nil
}

type fakeCompletion struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (f *fakeCompletion) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, messages[len(messages)-1].Message)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

const summaryJSON = `{"title":"Cancelamento de plano","profiles":["cliente irritado"],"process":"Confirmar dados","guidelines":["Ouvir o cliente"],"patterns":["Multa"]}`

func seed(store *memAnalysis, motive string, ids ...string) {
	op := common.RoleOperator
	for _, id := range ids {
		store.rows = append(store.rows,
			common.TranscriptRow{RunID: "run-1", TenantID: "t1", Motive: motive, AttendanceID: id, Seq: 1, Role: &op, Text: "Bom dia " + id},
			common.TranscriptRow{RunID: "run-1", TenantID: "t1", Motive: motive, AttendanceID: id, Seq: 2, Text: "Quero cancelar " + id},
		)
	}
}

func newRun(store *memAnalysis) {
	store.runs["run-1"] = common.AnalysisRun{ID: "run-1", TenantID: "t1", Status: common.RunStatusPending}
}

func TestRun_SampleCapAndProgress(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A3", "A1", "A2")
	llm := &fakeCompletion{response: summaryJSON}
	a := NewAnalyzer(llm, store, Config{SampleCap: 2})

	if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := store.progress["run-1/Cancelamento"]
	if p.TotalIDsDistinct != 3 || p.ProcessedIDsDistinct != 3 {
		t.Fatalf("unexpected progress %+v", p)
	}
	if len(llm.prompts) != 1 {
		t.Fatalf("expected one model call, got %d", len(llm.prompts))
	}
	prompt := llm.prompts[0]
	if strings.Count(prompt, "### Atendimento") != 2 {
		t.Fatalf("expected 2 sampled transcripts in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "### Atendimento A1") || !strings.Contains(prompt, "### Atendimento A2") || strings.Contains(prompt, "A3") {
		t.Fatalf("expected the two lowest ids to be sampled:\n%s", prompt)
	}
	if !strings.Contains(prompt, "ATENDENTE: Bom dia A1") || !strings.Contains(prompt, "CLIENTE: Quero cancelar A1") {
		t.Fatalf("expected display labels in prompt:\n%s", prompt)
	}

	if store.runs["run-1"].Status != common.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", store.runs["run-1"].Status)
	}
	res := store.results["run-1/Cancelamento"]
	if res.Status != common.ResultStatusReady || res.Summary.Title != "Cancelamento de plano" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := store.cache["t1/Cancelamento"]; !ok {
		t.Fatalf("expected cache row for fully processed motive")
	}
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Fatura", "B1", "B2", "B3", "B4")
	a := NewAnalyzer(&fakeCompletion{response: summaryJSON}, store, Config{SampleCap: 2})

	if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := store.history["run-1/Fatura"]
	for i := 1; i < len(history); i++ {
		if history[i] < history[i-1] {
			t.Fatalf("progress decreased: %v", history)
		}
	}
	for _, v := range history {
		if v > 4 {
			t.Fatalf("progress exceeded total: %v", history)
		}
	}
	if history[len(history)-1] != 4 {
		t.Fatalf("expected final progress 4, got %v", history)
	}
}

func TestRun_AttendanceErrorIsRecorded(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1", "A2", "A3")
	store.failMessagesOf = "A2"
	llm := &fakeCompletion{response: summaryJSON}
	a := NewAnalyzer(llm, store, Config{SampleCap: 5})

	if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.errors) != 1 {
		t.Fatalf("expected one error entry, got %+v", store.errors)
	}
	e := store.errors[0]
	if e.Code != common.ErrCodeAttendanceProcess || e.AttendanceID == nil || *e.AttendanceID != "A2" {
		t.Fatalf("unexpected error entry %+v", e)
	}
	if store.progress["run-1/Cancelamento"].ProcessedIDsDistinct != 3 {
		t.Fatalf("failed ids still count as processed")
	}
	if strings.Count(llm.prompts[0], "### Atendimento") != 2 {
		t.Fatalf("expected the failed id to be left out of the prompt")
	}
	if store.runs["run-1"].Status != common.RunStatusCompleted {
		t.Fatalf("expected completed run")
	}
}

func TestRun_UnsampledAttendanceErrorIsRecorded(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1", "A2", "A3")
	store.failMessagesOf = "A3"
	llm := &fakeCompletion{response: summaryJSON}
	a := NewAnalyzer(llm, store, Config{SampleCap: 1})

	if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.errors) != 1 || store.errors[0].AttendanceID == nil || *store.errors[0].AttendanceID != "A3" {
		t.Fatalf("expected an error entry for A3, got %+v", store.errors)
	}
	if strings.Count(llm.prompts[0], "### Atendimento") != 1 {
		t.Fatalf("only the sampled id belongs in the prompt:\n%s", llm.prompts[0])
	}
	if store.progress["run-1/Cancelamento"].ProcessedIDsDistinct != 3 {
		t.Fatalf("expected all ids processed")
	}
}

func TestRun_ModelFailureSkipsMotive(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeCompletion
	}{
		{name: "unparseable", llm: &fakeCompletion{response: "sorry, no json today"}},
		{name: "missing title", llm: &fakeCompletion{response: `{"title":"  ","profiles":[]}`}},
		{name: "service error", llm: &fakeCompletion{err: ai.NewServiceError(500, "", "upstream")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemAnalysis()
			newRun(store)
			seed(store, "Cancelamento", "A1")
			seed(store, "Fatura", "B1")
			a := NewAnalyzer(tt.llm, store, Config{})

			if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
				t.Fatalf("model failures must not fail the run: %v", err)
			}
			if len(tt.llm.prompts) != 2 {
				t.Fatalf("expected both motives to be attempted, got %d calls", len(tt.llm.prompts))
			}
			if len(store.errors) != 2 {
				t.Fatalf("expected one error per motive, got %+v", store.errors)
			}
			for _, e := range store.errors {
				if e.Code != common.ErrCodeMotiveLLM || e.AttendanceID != nil {
					t.Fatalf("unexpected error entry %+v", e)
				}
			}
			if len(store.results) != 0 || len(store.cache) != 0 {
				t.Fatalf("no result or cache expected on model failure")
			}
			if store.runs["run-1"].Status != common.RunStatusCompleted {
				t.Fatalf("expected completed run")
			}
		})
	}
}

func TestRun_MotivesInLexicalOrder(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Fatura", "B1")
	seed(store, "Cancelamento", "A1")
	llm := &fakeCompletion{response: summaryJSON}
	a := NewAnalyzer(llm, store, Config{})

	if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(llm.prompts[0], "Cancelamento") || !strings.Contains(llm.prompts[1], "Fatura") {
		t.Fatalf("expected Cancelamento before Fatura")
	}
}

func TestRun_ResumesFromPersistedProgress(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1", "A2", "A3", "A4")
	store.progress["run-1/Cancelamento"] = common.MotiveProgress{
		RunID: "run-1", Motive: "Cancelamento", TotalIDsDistinct: 4, ProcessedIDsDistinct: 3,
	}
	llm := &fakeCompletion{response: summaryJSON}
	a := NewAnalyzer(llm, store, Config{SampleCap: 1})

	if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := store.history["run-1/Cancelamento"]
	if history[0] != 3 {
		t.Fatalf("expected resume from 3, got %v", history)
	}
	for _, v := range history {
		if v < 3 {
			t.Fatalf("progress went back below the persisted value: %v", history)
		}
	}
	if store.progress["run-1/Cancelamento"].ProcessedIDsDistinct != 4 {
		t.Fatalf("expected final progress 4")
	}
	if strings.Count(llm.prompts[0], "### Atendimento") != 1 || !strings.Contains(llm.prompts[0], "### Atendimento A1") {
		t.Fatalf("sample must still contain the first ids after resume:\n%s", llm.prompts[0])
	}
}

func TestRun_UnknownRunIsIgnored(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1")
	llm := &fakeCompletion{response: summaryJSON}
	a := NewAnalyzer(llm, store, Config{})

	if err := a.Run(context.Background(), "run-1", "other-tenant"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Run(context.Background(), "missing", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(llm.prompts) != 0 || len(store.progress) != 0 {
		t.Fatalf("nothing must happen for unknown runs")
	}
	if store.runs["run-1"].Status != common.RunStatusPending {
		t.Fatalf("run of another tenant must stay untouched")
	}
}

func TestRun_PersistenceFailureFailsRun(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1")
	store.failProgress = true
	a := NewAnalyzer(&fakeCompletion{response: summaryJSON}, store, Config{})

	if err := a.Run(context.Background(), "run-1", "t1"); !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if store.runs["run-1"].Status != common.RunStatusFailed {
		t.Fatalf("expected failed run, got %s", store.runs["run-1"].Status)
	}
}

func TestRun_FinishedRunIsIgnored(t *testing.T) {
	for _, status := range []common.RunStatus{common.RunStatusCompleted, common.RunStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			store := newMemAnalysis()
			store.runs["run-1"] = common.AnalysisRun{ID: "run-1", TenantID: "t1", Status: status}
			seed(store, "Cancelamento", "A1")
			llm := &fakeCompletion{response: summaryJSON}
			a := NewAnalyzer(llm, store, Config{})

			if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store.runs["run-1"].Status != status {
				t.Fatalf("status changed from %s to %s", status, store.runs["run-1"].Status)
			}
			if len(llm.prompts) != 0 || len(store.progress) != 0 || len(store.results) != 0 {
				t.Fatalf("finished run must not be executed again")
			}
		})
	}
}

func TestRun_InterruptedRunStaysPending(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1")
	a := NewAnalyzer(&fakeCompletion{response: summaryJSON}, store, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Run(ctx, "run-1", "t1")
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected plain cancellation, got %v", err)
	}
	if store.runs["run-1"].Status != common.RunStatusPending {
		t.Fatalf("interrupted run must stay pending, got %s", store.runs["run-1"].Status)
	}
}

func TestRun_DeadlineFailsRun(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1")
	a := NewAnalyzer(&fakeCompletion{response: summaryJSON}, store, Config{RunTimeout: time.Nanosecond})

	if err := a.Run(context.Background(), "run-1", "t1"); !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if store.runs["run-1"].Status != common.RunStatusFailed {
		t.Fatalf("expected failed run, got %s", store.runs["run-1"].Status)
	}
}

type fakeLocker struct {
	busy bool
	key  string
}

func (f *fakeLocker) WithLease(
	ctx context.Context,
	key string,
	opts leaselock.Options,
	fn func(ctx context.Context) error,
) error {
	f.key = key
	if f.busy {
		return leaselock.ErrBusy
	}
	return fn(ctx)
}

func TestRun_Locker(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1")
	llm := &fakeCompletion{response: summaryJSON}

	busy := &fakeLocker{busy: true}
	a := NewAnalyzer(llm, store, Config{}, WithLocker(busy))
	if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
		t.Fatalf("busy run must be skipped quietly, got %v", err)
	}
	if busy.key != "analysis-run:run-1" {
		t.Fatalf("unexpected lock key %q", busy.key)
	}
	if len(llm.prompts) != 0 || store.runs["run-1"].Status != common.RunStatusPending {
		t.Fatalf("run must not execute while another holds the lease")
	}

	a = NewAnalyzer(llm, store, Config{}, WithLocker(&fakeLocker{}))
	if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.runs["run-1"].Status != common.RunStatusCompleted {
		t.Fatalf("expected completed run under lease, got %s", store.runs["run-1"].Status)
	}
}

func TestRun_CacheIsUpserted(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1", "A2")
	llm := &fakeCompletion{response: summaryJSON}
	a := NewAnalyzer(llm, store, Config{})

	for range 2 {
		newRun(store)
		if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if store.cacheWrites != 2 {
		t.Fatalf("expected two cache writes, got %d", store.cacheWrites)
	}
	if len(store.cache) != 1 {
		t.Fatalf("expected a single cache row, got %d", len(store.cache))
	}
}

func TestRun_ReuseCache(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1", "A2")
	store.cache["t1/Cancelamento"] = common.MotiveCache{
		TenantID: "t1", Motive: "Cancelamento", Summary: common.MotiveSummary{Title: "Cached"},
	}
	llm := &fakeCompletion{response: summaryJSON}
	a := NewAnalyzer(llm, store, Config{ReuseCache: true})

	if err := a.Run(context.Background(), "run-1", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(llm.prompts) != 0 {
		t.Fatalf("cached motive must not call the model")
	}
	if store.results["run-1/Cancelamento"].Summary.Title != "Cached" {
		t.Fatalf("expected cached summary in result")
	}
	p := store.progress["run-1/Cancelamento"]
	if p.TotalIDsDistinct != 2 || p.ProcessedIDsDistinct != 2 {
		t.Fatalf("unexpected progress %+v", p)
	}
}

func TestStart_DispatchesWithoutBlocking(t *testing.T) {
	store := newMemAnalysis()
	newRun(store)
	seed(store, "Cancelamento", "A1")
	llm := &fakeCompletion{response: summaryJSON}

	var d *GoroutineDispatcher
	a := NewAnalyzer(llm, store, Config{}, WithDispatcher(DispatcherFunc(func(ctx context.Context, task Task) error {
		return d.Dispatch(ctx, task)
	})))
	d = NewGoroutineDispatcher(a.RunTask)

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx, "run-1", "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	d.Wait()

	if store.runs["run-1"].Status != common.RunStatusCompleted {
		t.Fatalf("dispatched run must survive the caller's cancellation, got %s", store.runs["run-1"].Status)
	}
}

func TestTask(t *testing.T) {
	body, err := Task{RunID: "r1", TenantID: "t1"}.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task, err := ParseTask(body)
	if err != nil || task.RunID != "r1" || task.TenantID != "t1" {
		t.Fatalf("unexpected task %+v (%v)", task, err)
	}
	if _, err := ParseTask([]byte(`{"run_id":"r1"}`)); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
}

func TestRenderConversationsTruncates(t *testing.T) {
	samples := []sample{{attendanceID: "A1", turns: []turn{{text: strings.Repeat("x", 100)}}}}
	got := renderConversations(samples, 20)
	if len([]rune(got)) != 20 || !strings.HasPrefix(got, "### Atendimento A1") {
		t.Fatalf("unexpected truncation %q", got)
	}
}
