package classify

import (
	"testing"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

func TestClassifyBlockedPatterns(t *testing.T) {
	c := New()
	cases := []string{
		"rm -rf /",
		"rm -rf /*",
		":(){ :|:& };:",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"shutdown -h now",
	}
	for _, cmd := range cases {
		rec := c.Classify(cmd)
		if rec.Category != protocol.ShellBlocked {
			t.Errorf("expected %q classified blocked, got %s", cmd, rec.Category)
		}
		if !rec.IsBlocked() {
			t.Errorf("expected IsBlocked() true for %q", cmd)
		}
	}
}

func TestClassifyDestructivePatterns(t *testing.T) {
	c := New()
	cases := []string{"rm -rf ./build", "kill -9 1234", "git reset --hard HEAD~1"}
	for _, cmd := range cases {
		rec := c.Classify(cmd)
		if rec.Category != protocol.ShellDestructive {
			t.Errorf("expected %q classified destructive, got %s", cmd, rec.Category)
		}
		if !rec.RequiresApproval {
			t.Errorf("expected destructive command %q to require approval", cmd)
		}
	}
}

func TestClassifyReadPatternsNeedNoApproval(t *testing.T) {
	c := New()
	cases := []string{"ls -la", "git status", "cat file.txt", "ps aux"}
	for _, cmd := range cases {
		rec := c.Classify(cmd)
		if rec.Category != protocol.ShellRead {
			t.Errorf("expected %q classified read, got %s", cmd, rec.Category)
		}
		if rec.RequiresApproval {
			t.Errorf("expected read command %q to not require approval", cmd)
		}
		if rec.RiskLevel != protocol.RiskSafe {
			t.Errorf("expected read command %q to be risk safe, got %s", cmd, rec.RiskLevel)
		}
	}
}

func TestClassifyUnmatchedDefaultsToWriteMediumApproval(t *testing.T) {
	c := New()
	rec := c.Classify("some-custom-binary --flag value")
	if rec.Category != protocol.ShellWrite {
		t.Fatalf("expected unmatched command to default to write, got %s", rec.Category)
	}
	if rec.RiskLevel != protocol.RiskMedium {
		t.Fatalf("expected unmatched command to default to medium risk, got %s", rec.RiskLevel)
	}
	if !rec.RequiresApproval {
		t.Fatal("expected unmatched command to require approval")
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := New()
	a := c.Classify("rm -rf /tmp/scratch")
	b := c.Classify("rm -rf /tmp/scratch")
	if a != b {
		t.Fatalf("expected re-classifying the same string to yield an identical record, got %+v vs %+v", a, b)
	}
}

func TestFirstMatchWins(t *testing.T) {
	c := New()
	// "rm -rf /" must win over the more general destructive "rm -rf" rule.
	rec := c.Classify("rm -rf /")
	if rec.Category != protocol.ShellBlocked {
		t.Fatalf("expected the more specific blocked rule to win, got %s", rec.Category)
	}
}
