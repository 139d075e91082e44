package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/classmap/internal/model"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createSampleRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "vehicles.py", `from abc import ABC


class Drivable(ABC):
    def drive(self):
        pass


class Vehicle:
    pass


class Car(Vehicle, Drivable):
    def __init__(self):
        self.__engine = Engine()
`)
	writeTestFile(t, dir, "shop/Order.java", `package shop;

import java.util.List;

public class Order {
    private List<LineItem> items;
    private Customer customer;
}
`)
	return dir
}

func TestRunBasic(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{dir}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if !strings.HasPrefix(out, "root: ") {
		t.Errorf("output should start with root:, got:\n%s", out)
	}
	for _, want := range []string{
		"classes[4]",
		"Car,vehicles.py,python,class",
		"Order,shop/Order.java,java,class",
		"Car,Vehicle,inheritance",
		"Car,Drivable,interface_implementation",
		"Car,Engine,strong_composition,__engine",
		"Order,LineItem,aggregation,items",
		"Order,Customer,composition,customer",
		`"Engine::external",Engine,external,class,unknown`,
		"errors[0]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunJSON(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--format", "json", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	var cm model.ClassMap
	if err := json.Unmarshal(stdout.Bytes(), &cm); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout.String())
	}
	if cm.Root != filepath.Base(dir) {
		t.Errorf("root = %q", cm.Root)
	}
	if len(cm.Classes) != 4 {
		t.Errorf("got %d classes, want 4", len(cm.Classes))
	}
	if len(cm.Graph.Nodes) == 0 || len(cm.Graph.Edges) == 0 {
		t.Errorf("graph is empty: %+v", cm.Graph)
	}
	for _, r := range cm.Relationships {
		if r.Source == "" || r.Target == "" {
			t.Errorf("relationship with empty endpoint: %+v", r)
		}
	}
	if !strings.Contains(stdout.String(), `"category": "interface_implementation"`) {
		t.Error("categories should serialize as lowercase names")
	}
}

func TestRunMaxNodes(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-n", "2", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "nodes[2]") {
		t.Errorf("expected 2 nodes, got:\n%s", out)
	}
	// The class list is never truncated.
	if !strings.Contains(out, "classes[4]") {
		t.Errorf("expected all classes, got:\n%s", out)
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "classmap dev") {
		t.Errorf("version output: %q", stdout.String())
	}
}

func TestRunNoFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "readme.txt", "nothing here")

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "classes[0]") {
		t.Errorf("expected empty class list, got:\n%s", stdout.String())
	}
}

func TestRunUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run([]string{"-l", "rust", t.TempDir()}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for unsupported language")
	}
	if !strings.Contains(err.Error(), "unsupported language") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunLanguageFilter(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-l", "java", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "classes[1]") || strings.Contains(out, "vehicles.py") {
		t.Errorf("expected only the Java class, got:\n%s", out)
	}
}

func TestRunNotADirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "file.py", "x = 1\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{filepath.Join(dir, "file.py")}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for non-directory root")
	}
	if !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunMaxFileSize(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, "tiny.py", "class T:\n    pass\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--max-file-size", "50", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "classes[1]") {
		t.Errorf("expected only tiny.py's class, got:\n%s", out)
	}
	if !strings.Contains(out, "vehicles.py: skipped (>50 bytes)") {
		t.Errorf("expected size warning, got:\n%s", out)
	}
}

func TestRunMaxFiles(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--max-files", "1", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	// Files are scanned in path order, so only shop/Order.java is kept.
	if !strings.Contains(out, "classes[1]") {
		t.Errorf("expected one class, got:\n%s", out)
	}
	if !strings.Contains(out, "file limit reached: analyzed 1 of 2 files") {
		t.Errorf("expected limit warning, got:\n%s", out)
	}
}

func TestRunParseErrorIsReported(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, "broken.py", "class Broken(:\n    pass\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "errors[1]") || !strings.Contains(out, "broken.py:") {
		t.Errorf("expected broken.py in errors, got:\n%s", out)
	}
	if !strings.Contains(out, "classes[4]") {
		t.Errorf("other files should still be analyzed, got:\n%s", out)
	}
	if !strings.Contains(stderr.String(), "[WARN]") {
		t.Errorf("expected a warning on stderr, got: %q", stderr.String())
	}
}

func TestRunClassFilter(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--class", "order", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	// Order, LineItem and Customer.
	if !strings.Contains(out, "nodes[3]") {
		t.Errorf("expected Order and its neighbors, got:\n%s", out)
	}
	if strings.Contains(out, `"Car::vehicles.py",Car`) {
		t.Errorf("Car should be filtered out:\n%s", out)
	}
}

func TestRunFileFilter(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"--file", "vehicles", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := stdout.String()
	if strings.Contains(out, `"Order::Order.java",Order`) {
		t.Errorf("Order should be filtered out:\n%s", out)
	}
	if !strings.Contains(out, `"Car::vehicles.py",Car`) {
		t.Errorf("Car missing:\n%s", out)
	}
}

func TestRunConfigFile(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, ".classmap.toml", "format = \"json\"\nlanguages = [\"python\"]\n")

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	var cm model.ClassMap
	if err := json.Unmarshal(stdout.Bytes(), &cm); err != nil {
		t.Fatalf("config format not applied: %v\n%s", err, stdout.String())
	}
	if len(cm.Classes) != 3 {
		t.Errorf("got %d classes, want the 3 Python ones", len(cm.Classes))
	}
}

func TestRunBadConfig(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, ".classmap.toml", "format = \"xml\"\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected format error, got %v", err)
	}
}

func TestRunDependencyMode(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "school.py", `class Course:
    pass


class Student:
    def enroll(self, course: Course):
        pass
`)

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "Student,Course,association,course,enroll") {
		t.Errorf("expected association, got:\n%s", stdout.String())
	}

	stdout.Reset()
	if err := run([]string{"--dependency-mode", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "Student,Course,dependency,course,enroll") {
		t.Errorf("expected dependency, got:\n%s", stdout.String())
	}
}

func TestRunSpringAnnotations(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "OrderService.java", `@Service
public class OrderService {
    @Autowired
    private OrderRepository repository;
}
`)

	var stdout, stderr bytes.Buffer
	if err := run([]string{dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{
		"annotations[1]{class,file,annotation}:\n  OrderService,OrderService.java,Service",
		"injections[1]{class,kind,member,type}:\n  OrderService,field,repository,OrderRepository",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	stdout.Reset()
	if err := run([]string{"--format", "json", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	var cm model.ClassMap
	if err := json.Unmarshal(stdout.Bytes(), &cm); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(cm.Classes) != 1 || len(cm.Classes[0].Annotations) != 1 || len(cm.Classes[0].Injections) != 1 {
		t.Errorf("annotations missing from JSON: %+v", cm.Classes)
	}
}

func TestSnapshotAndCompare(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	snapPath := filepath.Join(t.TempDir(), "snap.json")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"snapshot", "--snapshot", snapPath, dir}, &stdout, &stderr); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !strings.Contains(stdout.String(), "Saved snapshot") {
		t.Errorf("snapshot output: %q", stdout.String())
	}
	if _, err := os.Stat(snapPath); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	stdout.Reset()
	if err := run([]string{"compare", "--snapshot", snapPath, dir}, &stdout, &stderr); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !strings.Contains(stdout.String(), "no relationship changes") {
		t.Errorf("unchanged tree should compare clean, got:\n%s", stdout.String())
	}

	writeTestFile(t, dir, "garage.py", "class Garage(Vehicle):\n    pass\n")
	stdout.Reset()
	if err := run([]string{"compare", "--snapshot", snapPath, dir}, &stdout, &stderr); err != nil {
		t.Fatalf("compare: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "1 added, 0 removed") || !strings.Contains(out, "+ Garage -> Vehicle") {
		t.Errorf("expected Garage inheritance to be reported, got:\n%s", out)
	}
}

func TestSnapshotDefaultPathInRoot(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	if err := run([]string{"snapshot", dir}, &stdout, &stderr); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".classmap-snapshot.json")); err != nil {
		t.Errorf("default snapshot not written in root: %v", err)
	}
}

func TestSnapshotSQLiteHistory(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	snapPath := filepath.Join(t.TempDir(), "history.db")

	var stdout, stderr bytes.Buffer
	for range 2 {
		if err := run([]string{"snapshot", "--snapshot", snapPath, dir}, &stdout, &stderr); err != nil {
			t.Fatalf("snapshot: %v", err)
		}
	}
	stdout.Reset()
	if err := run([]string{"compare", "--snapshot", snapPath, dir}, &stdout, &stderr); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !strings.Contains(stdout.String(), "no relationship changes") {
		t.Errorf("compare output:\n%s", stdout.String())
	}
}

func TestCompareList(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	snapPath := filepath.Join(t.TempDir(), "history.db")

	var stdout, stderr bytes.Buffer
	if err := run([]string{"compare", "--list", "--snapshot", snapPath, dir}, &stdout, &stderr); err != nil {
		t.Fatalf("compare --list: %v", err)
	}
	if !strings.Contains(stdout.String(), "No snapshot") {
		t.Errorf("empty history output: %q", stdout.String())
	}

	for range 2 {
		if err := run([]string{"snapshot", "--snapshot", snapPath, dir}, &stdout, &stderr); err != nil {
			t.Fatalf("snapshot: %v", err)
		}
	}
	stdout.Reset()
	if err := run([]string{"compare", "--list", "--snapshot", snapPath, dir}, &stdout, &stderr); err != nil {
		t.Fatalf("compare --list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 history lines, got:\n%s", stdout.String())
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, dir) {
			t.Errorf("history line should end with the root: %q", line)
		}
	}
}

func TestCompareWithoutSnapshot(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"compare", "--snapshot", filepath.Join(t.TempDir(), "none.json"), dir}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("missing snapshot should not be fatal: %v", err)
	}
	if !strings.Contains(stdout.String(), "No snapshot") {
		t.Errorf("compare output: %q", stdout.String())
	}
}
