package parser

import (
	"testing"

	"cx/internal/diagnostics"
	"cx/internal/vm"
)

// run translates src and executes its "main", failing the test on any
// translation or runtime error.
func run(t *testing.T, src string) (*Result, vm.Value) {
	t.Helper()
	diag := diagnostics.NewLog()
	res, err := Translate(src, diag, "")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if res.Entry == nil {
		t.Fatal("no main function found")
	}
	m := vm.New(res.Program, diag)
	result, err := m.Run(res.Entry)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res, result
}

// TestForLoopSum is spec.md §8's control-flow scenario: summing 1..10 via a
// for-loop must reach the VM as 55, exercising the step-clause splice-buffer
// technique end to end through the real parser.
func TestForLoopSum(t *testing.T) {
	src := `
int main() {
    int sum;
    int i;
    sum = 0;
    for (i = 1; i <= 10; i = i + 1) {
        sum = sum + i;
    }
    return sum;
}
`
	_, result := run(t, src)
	if result.I != 55 {
		t.Fatalf("sum 1..10 = %d, want 55", result.I)
	}
}

// TestCharArrayEquality is spec.md §8's string-equality scenario: two
// equal-length char arrays holding the same bytes compare equal, exercising
// emitCharArrayCompare's element-wise loop rather than a pointer compare.
func TestCharArrayEquality(t *testing.T) {
	src := `
int main() {
    char s[3] = "ab";
    char t[3] = "ab";
    if (s == t) {
        return 1;
    }
    return 0;
}
`
	_, result := run(t, src)
	if result.I != 1 {
		t.Fatalf("equal char arrays compared = %d, want 1", result.I)
	}
}

// TestCharArrayInequality is the negative counterpart: differing contents
// must compare unequal through the same loop.
func TestCharArrayInequality(t *testing.T) {
	src := `
int main() {
    char s[3] = "ab";
    char t[3] = "ac";
    if (s == t) {
        return 1;
    }
    return 0;
}
`
	_, result := run(t, src)
	if result.I != 0 {
		t.Fatalf("unequal char arrays compared = %d, want 0", result.I)
	}
}

// TestParseRecoversFromMalformedDeclarator exercises spec.md §4.5's error
// recovery discipline: a malformed declarator reports diagnostics without
// aborting translation, and parsing resumes at the next statement.
func TestParseRecoversFromMalformedDeclarator(t *testing.T) {
	src := `
int main() {
    int x = ;
    return 0;
}
`
	diag := diagnostics.NewLog()
	res, err := Translate(src, diag, "")
	if err != nil {
		t.Fatalf("malformed declarator should recover, not abort: %v", err)
	}
	if diag.Count == 0 {
		t.Fatal("expected at least one recorded diagnostic")
	}
	if res.Entry == nil {
		t.Fatal("main was not found despite recovering from the malformed declarator")
	}

	m := vm.New(res.Program, diag)
	result, err := m.Run(res.Entry)
	if err != nil {
		t.Fatalf("unexpected runtime error after recovery: %v", err)
	}
	if result.I != 0 {
		t.Fatalf("return 0 after recovery = %d, want 0", result.I)
	}
}
