package domain

import (
	"testing"
)

func replayUser(t *testing.T, source *User) *User {
	t.Helper()
	replayed := NewUser(source.ID(), source.InstanceID(), source.ResourceOwner())
	for _, event := range source.UncommittedEvents() {
		if err := replayed.Reduce(event); err != nil {
			t.Fatalf("reduce %s: %v", event.EventType, err)
		}
	}
	return replayed
}

func TestAddHumanNormalizesUsername(t *testing.T) {
	user := NewUser("user-1", "inst-1", "org-1")
	err := user.AddHuman("e1", "admin", HumanAddedPayload{
		Username: "Alice", Email: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("add human: %v", err)
	}

	events := user.UncommittedEvents()
	if len(events[0].UniqueConstraints) != 1 {
		t.Fatalf("constraints = %+v", events[0].UniqueConstraints)
	}
	if got := events[0].UniqueConstraints[0].Value; got != "alice" {
		t.Fatalf("claimed username = %q", got)
	}

	if user.Username != "alice" || user.Type != UserTypeHuman || user.State != UserStateInitial {
		t.Fatalf("user = %+v", user)
	}
	if got := replayUser(t, user); got.Username != "alice" || got.State != UserStateInitial {
		t.Fatalf("replayed user = %+v", got)
	}
}

func TestAddHumanRejectsConfusableUsername(t *testing.T) {
	user := NewUser("user-1", "inst-1", "org-1")
	err := user.AddHuman("e1", "admin", HumanAddedPayload{
		Username: "al\x00ice", Email: "alice@example.com",
	})
	if CodeOf(err) != "USER-UsernameInvalid" {
		t.Fatalf("err = %v", err)
	}
}

func TestAddMachineStartsActive(t *testing.T) {
	user := NewUser("svc-1", "inst-1", "org-1")
	if err := user.AddMachine("e1", "admin", MachineAddedPayload{Username: "deployer"}); err != nil {
		t.Fatalf("add machine: %v", err)
	}
	if user.Type != UserTypeMachine || user.State != UserStateActive {
		t.Fatalf("user = %+v", user)
	}
}

func TestChangePassword(t *testing.T) {
	user := NewUser("user-1", "inst-1", "org-1")
	if err := user.AddHuman("e1", "admin", HumanAddedPayload{Username: "alice", Email: "a@example.com"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := user.ChangePassword("e2", "alice", "password"); CodeOf(err) != CodeWeakPassword {
		t.Fatalf("weak password: %v", err)
	}

	if err := user.ChangePassword("e3", "alice", "tr0pical-Penguin-41!"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if err := user.CheckPassword("tr0pical-Penguin-41!"); err != nil {
		t.Fatalf("check password: %v", err)
	}
	if err := user.CheckPassword("wrong"); CodeOf(err) != CodeInvalidCredentials {
		t.Fatalf("wrong password: %v", err)
	}

	got := replayUser(t, user)
	if err := got.CheckPassword("tr0pical-Penguin-41!"); err != nil {
		t.Fatalf("check password after replay: %v", err)
	}
}

func TestCheckPasswordWithoutHash(t *testing.T) {
	user := NewUser("user-1", "inst-1", "org-1")
	if err := user.CheckPassword("anything"); CodeOf(err) != CodeInvalidCredentials {
		t.Fatalf("err = %v", err)
	}
}

func TestUserLockUnlock(t *testing.T) {
	user := NewUser("user-1", "inst-1", "org-1")
	if err := user.AddHuman("e1", "admin", HumanAddedPayload{Username: "alice", Email: "a@example.com"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := user.Unlock("e2", "admin"); CodeOf(err) != "USER-NotLocked" {
		t.Fatalf("unlock active: %v", err)
	}
	if err := user.Lock("e3", "admin"); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// locking a locked user emits nothing
	before := len(user.UncommittedEvents())
	if err := user.Lock("e4", "admin"); err != nil {
		t.Fatalf("re-lock: %v", err)
	}
	if len(user.UncommittedEvents()) != before {
		t.Fatal("re-lock emitted an event")
	}

	if err := user.CheckAuthAllowed(); CodeOf(err) != CodeUserLocked {
		t.Fatalf("auth while locked: %v", err)
	}

	if err := user.Unlock("e5", "admin"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := user.CheckAuthAllowed(); err != nil {
		t.Fatalf("auth after unlock: %v", err)
	}
}

func TestUserRemoveReleasesUsername(t *testing.T) {
	user := NewUser("user-1", "inst-1", "org-1")
	if err := user.AddHuman("e1", "admin", HumanAddedPayload{Username: "alice", Email: "a@example.com"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := user.Remove("e2", "admin"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	events := user.UncommittedEvents()
	last := events[len(events)-1]
	if len(last.UniqueConstraints) != 1 || last.UniqueConstraints[0].Operation != ConstraintRelease {
		t.Fatalf("constraints = %+v", last.UniqueConstraints)
	}
	if last.UniqueConstraints[0].Value != "alice" {
		t.Fatalf("released = %q", last.UniqueConstraints[0].Value)
	}
}
