package jshost

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/taskhost/internal/executor"
	"github.com/me/taskhost/internal/host"
	"github.com/me/taskhost/internal/scheduler"
	"github.com/me/taskhost/pkg/model"
)

// testHost creates a JS host on a manual clock with a synchronous executor.
func testHost(t *testing.T, opts ...scheduler.Option) (*Host, *bytes.Buffer, *scheduler.ManualClock) {
	t.Helper()
	clock := scheduler.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &out
	cfg.BaseDir = t.TempDir()
	cfg.FetchTimeout = 5 * time.Second

	base := []scheduler.Option{
		scheduler.WithClock(clock),
		scheduler.WithExecutor(executor.NewInlineExecutor()),
	}
	h, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Scheduler().Close() })
	return h, &out, clock
}

func mustRun(t *testing.T, h *Host, src string) host.Thread {
	t.Helper()
	th, err := h.RunScript("test.js", src)
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	return th
}

func failures(outcomes []model.Outcome) []string {
	var msgs []string
	for _, o := range outcomes {
		if o.IsFailure() {
			msgs = append(msgs, o.Message)
		}
	}
	return msgs
}

func TestRunScript_SpawnRunsInline(t *testing.T) {
	h, out, _ := testHost(t)

	mustRun(t, h, `
task.spawn(function* () {
	print("a");
	yield task.wait(0);
	print("c");
});
print("b");
`)
	if got := out.String(); got != "a\nb\n" {
		t.Fatalf("output after RunScript = %q, want a, b", got)
	}
	h.Scheduler().Run()
	if got := out.String(); got != "a\nb\nc\n" {
		t.Errorf("output after tick = %q", got)
	}
}

func TestRunScript_WaitDeliversElapsedSeconds(t *testing.T) {
	h, out, clock := testHost(t)

	mustRun(t, h, `
const dt = yield task.wait(0.2);
print(dt);
`)
	for i := 0; i < 4; i++ {
		if out.Len() != 0 {
			t.Fatalf("resumed early, after %d ticks", i)
		}
		clock.Advance(50 * time.Millisecond)
		h.Scheduler().Run()
	}
	if got := strings.TrimSpace(out.String()); got != "0.2" {
		t.Errorf("elapsed = %q, want 0.2", got)
	}
}

func TestRunScript_HugeDurationsStaySuspended(t *testing.T) {
	h, out, clock := testHost(t)

	main := mustRun(t, h, `
const th = task.delay(1e11, function () { print("delayed"); });
task.spawn(function* () { print(task.status(th)); });
yield task.wait(1e11);
print("woke");
`)
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		if msgs := failures(h.Scheduler().Run()); len(msgs) != 0 {
			t.Fatalf("failures = %q", msgs)
		}
	}
	if got := out.String(); got != "delaying\n" {
		t.Errorf("output = %q, want only delaying", got)
	}
	status, err := h.Scheduler().Status(main)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != model.TaskStatusWaiting {
		t.Errorf("status = %s, want waiting", status)
	}
}

func TestRunScript_DeferOrder(t *testing.T) {
	h, out, _ := testHost(t)

	mustRun(t, h, `
task.defer(function* () { print("A"); });
task.defer(function () { print("B"); });
print("queued");
`)
	h.Scheduler().Run()
	if got := out.String(); got != "queued\nA\nB\n" {
		t.Errorf("output = %q, want queued, A, B", got)
	}
}

func TestRunScript_DelayThenCancel(t *testing.T) {
	h, out, clock := testHost(t)

	mustRun(t, h, `
const th = task.delay(1.0, function* () { print("ran"); });
task.cancel(th);
print(task.status(th));
`)
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		h.Scheduler().Run()
	}
	if got := out.String(); got != "delaying\n" {
		t.Errorf("output = %q, want only delaying", got)
	}
}

func TestRunScript_StatusStrings(t *testing.T) {
	h, out, _ := testHost(t)

	mustRun(t, h, `
print(task.status(task.current()));
const g = task.spawn(function* () {
	const v = yield;
	print("got " + v);
});
print(task.status(g));
const w = task.defer(function () {});
print(task.status(w));
const d = task.delay(1, function () {});
print(task.status(d));
task.spawn(g, 1, 2);
print(task.status(g));
task.spawn(function* () {
	yield task.wait(1);
	print(task.status(task.current()));
});
`)
	want := []string{"running", "yielding", "deferring", "delaying", "got 1,2", "killed"}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("output = %q, want %q", got, want)
	}

	// The waiting task is visible to the host too.
	var waiting int
	for _, info := range h.Scheduler().Tasks() {
		if info.Status == model.TaskStatusWaiting {
			waiting++
		}
	}
	if waiting != 1 {
		t.Errorf("waiting tasks = %d, want 1", waiting)
	}
}

func TestRunScript_ArgumentErrorsThrowSynchronously(t *testing.T) {
	h, out, _ := testHost(t)

	mustRun(t, h, `
const r = [];
try { task.status(5); } catch (e) { r.push(e instanceof TypeError); }
try { task.cancel({}); } catch (e) { r.push(e instanceof TypeError); }
try { task.delay(-1, function () {}); } catch (e) { r.push(e instanceof RangeError); }
try { task.delay(NaN, function () {}); } catch (e) { r.push(e instanceof RangeError); }
try { task.spawn("nope"); } catch (e) { r.push(e instanceof TypeError); }
try { task.wait("x"); } catch (e) { r.push(e instanceof TypeError); }
print(r.join(","));
`)
	if got := strings.TrimSpace(out.String()); got != "true,true,true,true,true,true" {
		t.Errorf("results = %q", got)
	}
	if n := h.Scheduler().QueueLen(); n != 0 {
		t.Errorf("argument errors queued %d tasks", n)
	}
}

func TestRunScript_LifecycleErrors(t *testing.T) {
	h, out, _ := testHost(t)

	mustRun(t, h, `
const d = task.delay(1, function () {});
try { task.spawn(d); } catch (e) { print(e.message); }
try { task.cancel(task.current()); } catch (e) { print(e.message); }
const done = task.spawn(function () {});
task.cancel(done);
print(task.status(done));
`)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output = %q", out.String())
	}
	if !strings.HasPrefix(lines[0], "spawn: ") {
		t.Errorf("spawn error = %q", lines[0])
	}
	if !strings.Contains(lines[1], "cannot cancel a running thread") {
		t.Errorf("cancel error = %q", lines[1])
	}
	if lines[2] != "killed" {
		t.Errorf("status of finished thread = %q, want killed", lines[2])
	}
}

func TestRunScript_ErrorBecomesFeedback(t *testing.T) {
	h, out, _ := testHost(t)

	mustRun(t, h, `
task.spawn(function () { throw new Error("boom"); });
print("after");
`)
	if got := out.String(); got != "after\n" {
		t.Errorf("output = %q, want the script to continue", got)
	}
	msgs := failures(h.Scheduler().Run())
	if len(msgs) != 1 || msgs[0] != "Error: boom" {
		t.Errorf("failures = %q, want [Error: boom]", msgs)
	}
}

func TestRunScript_CompileError(t *testing.T) {
	h, _, _ := testHost(t)

	if _, err := h.RunScript("bad.js", "let = ;"); err == nil {
		t.Fatal("expected compile error")
	}
	if h.Scheduler().Len() != 0 {
		t.Error("compile error left a task registered")
	}
}

func TestReadFile(t *testing.T) {
	h, out, _ := testHost(t)
	if err := os.WriteFile(filepath.Join(h.cfg.BaseDir, "hello.txt"), []byte("hi there\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	th := mustRun(t, h, `
const s = yield readFile("hello.txt");
print(s.trim());
`)
	if st, _ := h.Scheduler().Status(th); st != model.TaskStatusYielding {
		t.Errorf("status while reading = %q, want yielding", st)
	}
	h.Scheduler().Run()
	if got := out.String(); got != "hi there\n" {
		t.Errorf("output = %q", got)
	}
}

func TestReadFile_FailureKillsTask(t *testing.T) {
	h, out, _ := testHost(t)

	mustRun(t, h, `
const th = task.spawn(function* () {
	yield readFile("missing.txt");
	print("unreachable");
});
print(task.status(th));
`)
	if got := out.String(); got != "killed\n" {
		t.Errorf("output = %q, want killed", got)
	}
	msgs := failures(h.Scheduler().Run())
	if len(msgs) != 1 || !strings.Contains(msgs[0], "readFile:") || !strings.Contains(msgs[0], "missing.txt") {
		t.Errorf("failures = %q", msgs)
	}
	h.Scheduler().Run()
	if strings.Contains(out.String(), "unreachable") {
		t.Error("task resumed after its work failed")
	}
}

func TestGlob(t *testing.T) {
	h, out, _ := testHost(t)
	dir := h.cfg.BaseDir
	for _, name := range []string{"a.txt", "sub/b.txt", "sub/c.md"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	mustRun(t, h, `
const files = yield glob("**/*.txt");
print(files.length);
`)
	h.Scheduler().Run()
	if got := strings.TrimSpace(out.String()); got != "2" {
		t.Errorf("matches = %q, want 2", got)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "pong")
	}))
	defer srv.Close()

	h, out, _ := testHost(t)
	mustRun(t, h, fmt.Sprintf(`
print(yield fetch(%q));
task.spawn(function* () { yield fetch(%q); });
`, srv.URL+"/ping", srv.URL+"/missing"))

	msgs := failures(h.Scheduler().Run())
	if got := out.String(); got != "pong\n" {
		t.Errorf("output = %q, want pong", got)
	}
	if len(msgs) != 1 || msgs[0] != "fetch: HTTP 404: Not Found" {
		t.Errorf("failures = %q", msgs)
	}
}

func TestFetch_OversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 9<<20))
	}))
	defer srv.Close()

	h, out, _ := testHost(t)
	mustRun(t, h, fmt.Sprintf(`
const body = yield fetch(%q);
print(body.length);
`, srv.URL))

	msgs := failures(h.Scheduler().Run())
	if out.Len() != 0 {
		t.Errorf("output = %q, want nothing", out.String())
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0], "exceeds 8 MiB") {
		t.Errorf("failures = %q", msgs)
	}
}

func TestCapabilityGate(t *testing.T) {
	h, out, _ := testHost(t, scheduler.WithCapability(model.CapabilityPluginSecurity))

	mustRun(t, h, `
try { yield readFile("x"); } catch (e) { print(e.message); }
try { yield fetch("http://localhost/"); } catch (e) { print(e.message); }
`)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q", out.String())
	}
	if !strings.Contains(lines[0], "requires HostScript capability") {
		t.Errorf("readFile error = %q", lines[0])
	}
	if !strings.Contains(lines[1], "requires LocalUser capability") {
		t.Errorf("fetch error = %q", lines[1])
	}
}

func TestConsoleRoutesToLogger(t *testing.T) {
	var logs bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = io.Discard
	h, err := New(cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Scheduler().Close() })

	mustRun(t, h, `console.warn("disk", "low");`)
	got := logs.String()
	if !strings.Contains(got, `msg="disk low"`) || !strings.Contains(got, "source=console") || !strings.Contains(got, "level=WARN") {
		t.Errorf("log output = %q", got)
	}
}

func TestNewThread_RejectsNonCallable(t *testing.T) {
	h, _, _ := testHost(t)

	if _, err := h.NewThread("not a value"); !errors.Is(err, host.ErrNotCallable) {
		t.Errorf("NewThread(string) err = %v, want ErrNotCallable", err)
	}
	if _, err := h.NewThread(h.vm.ToValue(5)); !errors.Is(err, host.ErrNotCallable) {
		t.Errorf("NewThread(5) err = %v, want ErrNotCallable", err)
	}
	gen, err := h.vm.RunString("(function* () {})")
	if err != nil {
		t.Fatal(err)
	}
	th, err := h.NewThread(gen)
	if err != nil {
		t.Fatalf("NewThread(generator): %v", err)
	}
	if !th.(*Thread).isGen {
		t.Error("generator function not detected")
	}
}

func TestThread_ResumeAfterClose(t *testing.T) {
	h, _, _ := testHost(t)

	fn, err := h.vm.RunString("(function* () { yield 1; })")
	if err != nil {
		t.Fatal(err)
	}
	th, err := h.NewThread(fn)
	if err != nil {
		t.Fatal(err)
	}
	if res := th.Resume(nil); res.Status != host.Suspended || len(res.Values) != 1 {
		t.Fatalf("first Resume = %+v, want suspended with value", res)
	}
	th.Close()
	if res := th.Resume(nil); res.Status != host.Failed {
		t.Errorf("Resume after Close = %v, want failed", res.Status)
	}
	if !strings.HasPrefix(th.Identity(), "thread: 0x") {
		t.Errorf("Identity() = %q", th.Identity())
	}
}
