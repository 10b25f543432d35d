package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"busmate/internal/model"

	"github.com/rs/zerolog"
)

func newTestAdmission(users *fakeUserRepo, access *fakeAccessRepo) AdmissionService {
	return NewAdmissionService(users, access, 5, 4, zerolog.Nop())
}

func TestAdmitBlockedUser(t *testing.T) {
	users := newFakeUserRepo()
	access := newFakeAccessRepo()
	reason := "Blocked due to 3 no-shows"
	users.put(&model.User{UserID: "u1", IsBlocked: true, BlockedReason: &reason})

	res, err := newTestAdmission(users, access).Admit(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.Status != AdmissionBlocked {
		t.Fatalf("status = %s, want %s", res.Status, AdmissionBlocked)
	}
	if res.Reason != reason {
		t.Errorf("reason = %q, want %q", res.Reason, reason)
	}
	if len(access.records) != 0 {
		t.Error("blocked user consumed a daily access slot")
	}
}

func TestAdmitBlockedUserWithoutReason(t *testing.T) {
	users := newFakeUserRepo()
	users.put(&model.User{UserID: "u1", IsBlocked: true})

	res, err := newTestAdmission(users, newFakeAccessRepo()).Admit(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.Status != AdmissionBlocked {
		t.Fatalf("status = %s, want %s", res.Status, AdmissionBlocked)
	}
	if res.Reason == "" {
		t.Error("expected a default block reason")
	}
}

func TestAdmitAdminBypassesLimits(t *testing.T) {
	users := newFakeUserRepo()
	access := newFakeAccessRepo()
	users.put(&model.User{UserID: "admin", IsAdmin: true})
	svc := newTestAdmission(users, access)

	// Well past both limits.
	for i := 0; i < 20; i++ {
		res, err := svc.Admit(context.Background(), "admin")
		if err != nil {
			t.Fatalf("Admit #%d: %v", i+1, err)
		}
		if res.Status != AdmissionAdmitted {
			t.Fatalf("Admit #%d: status = %s, want %s", i+1, res.Status, AdmissionAdmitted)
		}
	}
	if len(access.records) != 0 {
		t.Error("admin consumed a daily access slot")
	}
	if users.users["admin"].DailyRequestCount != 0 {
		t.Error("admin consumed request quota")
	}
}

func TestAdmitDailyUniqueUserCap(t *testing.T) {
	svc := newTestAdmission(newFakeUserRepo(), newFakeAccessRepo())

	for i := 1; i <= 5; i++ {
		res, err := svc.Admit(context.Background(), fmt.Sprintf("u%d", i))
		if err != nil {
			t.Fatalf("Admit u%d: %v", i, err)
		}
		if res.Status != AdmissionAdmitted {
			t.Fatalf("u%d: status = %s, want %s", i, res.Status, AdmissionAdmitted)
		}
	}

	res, err := svc.Admit(context.Background(), "u6")
	if err != nil {
		t.Fatalf("Admit u6: %v", err)
	}
	if res.Status != AdmissionDailyLimit {
		t.Fatalf("u6: status = %s, want %s", res.Status, AdmissionDailyLimit)
	}
	if res.Access.CurrentCount != 5 || res.Access.Limit != 5 {
		t.Errorf("u6: access = %+v, want currentCount 5 limit 5", res.Access)
	}
}

func TestAdmitRequestQuotaExhaustion(t *testing.T) {
	users := newFakeUserRepo()
	users.put(&model.User{UserID: "u1"})
	svc := newTestAdmission(users, newFakeAccessRepo())

	for i := 1; i <= 4; i++ {
		res, err := svc.Admit(context.Background(), "u1")
		if err != nil {
			t.Fatalf("Admit #%d: %v", i, err)
		}
		if res.Status != AdmissionAdmitted {
			t.Fatalf("request #%d: status = %s, want %s", i, res.Status, AdmissionAdmitted)
		}
		if res.Quota.Count != i {
			t.Errorf("request #%d: count = %d, want %d", i, res.Quota.Count, i)
		}
	}

	res, err := svc.Admit(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Admit #5: %v", err)
	}
	if res.Status != AdmissionRequestLimit {
		t.Fatalf("request #5: status = %s, want %s", res.Status, AdmissionRequestLimit)
	}
	if res.Quota.Count != 4 || res.Quota.Limit != 4 {
		t.Errorf("request #5: quota = %+v, want count 4 limit 4", res.Quota)
	}
}

func TestAdmitFailsOpenOnCountingGateErrors(t *testing.T) {
	users := newFakeUserRepo()
	users.failQuota = true
	access := newFakeAccessRepo()
	access.fail = true

	res, err := newTestAdmission(users, access).Admit(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res.Status != AdmissionAdmitted {
		t.Fatalf("status = %s, want %s when the counting gates are down", res.Status, AdmissionAdmitted)
	}
}

func TestAdmitFailsWhenUserLookupErrors(t *testing.T) {
	users := newFakeUserRepo()
	users.failGet = true
	access := newFakeAccessRepo()

	res, err := newTestAdmission(users, access).Admit(context.Background(), "u1")
	if err == nil {
		t.Fatalf("Admit = %+v, want an error when the user read fails", res)
	}
	// Block state could not be evaluated, so nothing downstream may run.
	if res.Status == AdmissionAdmitted {
		t.Error("request was admitted despite the failed user read")
	}
	if len(access.records) != 0 {
		t.Error("failed request consumed a daily access slot")
	}
}

func TestAdmitConcurrentNeverOvershootsCap(t *testing.T) {
	access := newFakeAccessRepo()
	svc := newTestAdmission(newFakeUserRepo(), access)

	const attempts = 25
	results := make([]AdmissionResult, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Admit(context.Background(), fmt.Sprintf("user-%d", i))
			if err != nil {
				t.Errorf("Admit user-%d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	var admitted int
	for _, res := range results {
		if res.Status == AdmissionAdmitted {
			admitted++
		}
	}
	if admitted != 5 {
		t.Fatalf("admitted = %d distinct users, want exactly 5", admitted)
	}
	for _, rec := range access.records {
		if len(rec.UserIDs) != 5 || rec.UniqueUsers != 5 {
			t.Fatalf("ledger holds %d users (counter %d), want 5", len(rec.UserIDs), rec.UniqueUsers)
		}
	}
}
