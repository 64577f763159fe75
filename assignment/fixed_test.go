package assignment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/assignment-engine/assignment"
	"github.com/warp/assignment-engine/generic"
	"github.com/warp/assignment-engine/generic/store"
)

// =============================================================================
// CREATION
// =============================================================================

func TestFixedBlocks_CreatesAssignmentBlocksAndAudit(t *testing.T) {
	// GIVEN: a user with no assignment on the project
	// WHEN: two blocks are submitted
	// THEN: the assignment is created, blocks stored as manual, one create audit
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.service.ProcessFixedBlocks(ctx, fixedInput(projectID,
		blk("2024-03-04", "09:00", "12:30"),
		blk("2024-03-05", "14:00", "16:00"),
	))
	require.NoError(t, err)
	assert.Equal(t, assignment.MsgAssignmentsCompleted, res.Message)
	require.Len(t, res.Created, 2)

	a, err := env.store.GetAssignment(ctx, userID, projectID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "developer", a.Role)
	assert.Equal(t, generic.AssignmentStatusActive, a.Status)

	blocks := env.activeBlocks(t)
	require.Len(t, blocks, 2)
	assert.True(t, blocks[0].DurationHours.Equal(dec("3.5")))
	assert.Equal(t, generic.ModeManual, blocks[0].Mode)
	assert.Equal(t, adminID, blocks[0].AssignByUserID)
	assert.Empty(t, blocks[0].Comment)

	audits, err := env.service.Audits(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, generic.AuditCreate, audits[0].Action)
	assert.Equal(t, generic.EntityTimeBlock, audits[0].EntityType)
	assert.Equal(t, adminID, audits[0].ChangedBy)
	assert.Equal(t, map[string]any{"user_id": userID, "hours": 5.5}, audits[0].NewValues)
}

func TestFixedBlocks_ReusesExistingAssignment(t *testing.T) {
	env := newTestEnv(t)
	first := env.book(t, projectID, blk("2024-03-04", "09:00", "10:00"))
	second := env.book(t, projectID, blk("2024-03-05", "09:00", "10:00"))

	assert.Equal(t, first[0].AssignmentID, second[0].AssignmentID)
}

func TestFixedBlocks_CannedComments(t *testing.T) {
	// GIVEN: a 9h block after the project end, with both justifications
	env := newTestEnv(t)
	in := fixedInput(shortProjectID, blk("2024-04-01", "08:00", "17:00"))
	in.Comments = assignment.Comments{TooLong: "go-live", OutOfRange: "support"}

	// WHEN: submitted
	res, err := env.service.ProcessFixedBlocks(context.Background(), in)

	// THEN: both comments are stored on the block
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "go-live | support", res.Created[0].Comment)
}

func TestFixedBlocks_HighSeasonRaisesOvertimeCap(t *testing.T) {
	// GIVEN: 11h in one day, justified
	in := fixedInput(projectID,
		blk("2024-11-12", "07:00", "13:00"),
		blk("2024-11-12", "13:00", "18:00"),
	)

	// WHEN: submitted in normal season (cap 10)
	normal := newTestEnv(t)
	_, err := normal.service.ProcessFixedBlocks(context.Background(), in)
	assert.ErrorIs(t, err, generic.ErrDailyLimitExceeded)

	// WHEN: submitted in high season (cap 12)
	high := newTestEnv(t, withNow(time.Date(2024, time.November, 5, 9, 0, 0, 0, time.UTC)))
	_, err = high.service.ProcessFixedBlocks(context.Background(), in)
	assert.NoError(t, err)
}

func TestFixedBlocks_InvalidModeRejected(t *testing.T) {
	env := newTestEnv(t)
	b := blk("2024-03-04", "09:00", "10:00")
	b.Mode = "weekly"

	_, err := env.service.ProcessFixedBlocks(context.Background(), fixedInput(projectID, b))
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	assert.Empty(t, env.activeBlocks(t))
}

// =============================================================================
// EDITS
// =============================================================================

func TestFixedBlocks_EditWithoutAssignment(t *testing.T) {
	env := newTestEnv(t)
	in := fixedInput(projectID)
	edit := blk("2024-03-04", "09:00", "10:00")
	edit.ID = 42
	in.EditedTimeBlocks = []assignment.BlockInput{edit}

	_, err := env.service.ProcessFixedBlocks(context.Background(), in)
	assert.ErrorIs(t, err, generic.ErrAssignmentNotFound)
}

func TestFixedBlocks_EditMovesBlockAndAuditsTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.book(t, projectID, blk("2024-03-04", "09:00", "11:00"))

	// WHEN: the block is moved and stretched to 3h, overlapping its old slot
	edit := blk("2024-03-04", "10:00", "13:00")
	edit.ID = created[0].ID
	in := fixedInput(projectID)
	in.EditedTimeBlocks = []assignment.BlockInput{edit}

	res, err := env.service.ProcessFixedBlocks(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	// THEN: one active block with the new times
	blocks := env.activeBlocks(t)
	require.Len(t, blocks, 1)
	assert.Equal(t, "10:00-13:00", blocks[0].Interval().String())
	assert.True(t, blocks[0].DurationHours.Equal(dec("3")))

	audits, err := env.service.Audits(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	update := audits[0]
	assert.Equal(t, generic.AuditUpdate, update.Action)
	assert.Equal(t, 2.0, update.OldValues["hours"])
	assert.Equal(t, 3.0, update.NewValues["hours"])
	assert.Equal(t, true, update.Metadata["no_compare_field"])
}

func TestFixedBlocks_EditUnknownBlock(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, projectID, blk("2024-03-04", "09:00", "11:00"))

	edit := blk("2024-03-05", "09:00", "10:00")
	edit.ID = 999
	in := fixedInput(projectID)
	in.EditedTimeBlocks = []assignment.BlockInput{edit}

	_, err := env.service.ProcessFixedBlocks(context.Background(), in)
	assert.ErrorIs(t, err, generic.ErrTimeBlockNotFound)
}

func TestFixedBlocks_EditRequiresID(t *testing.T) {
	env := newTestEnv(t)
	in := fixedInput(projectID)
	in.EditedTimeBlocks = []assignment.BlockInput{blk("2024-03-05", "09:00", "10:00")}

	_, err := env.service.ProcessFixedBlocks(context.Background(), in)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

// =============================================================================
// OWNERSHIP
// =============================================================================

const otherUserID = "u-bob"

func bookAs(t *testing.T, env *testEnv, user string, blocks ...assignment.BlockInput) []generic.TimeBlock {
	t.Helper()
	in := fixedInput(projectID, blocks...)
	in.UserID = user
	res, err := env.service.ProcessFixedBlocks(context.Background(), in)
	require.NoError(t, err)
	return res.Created
}

func activeBlocksOf(t *testing.T, env *testEnv, user string) []generic.TimeBlock {
	t.Helper()
	blocks, err := env.store.ActiveBlocksForUser(context.Background(), user, generic.DateRange{})
	require.NoError(t, err)
	return blocks
}

func TestFixedBlocks_EditOfAnotherUsersBlockRejected(t *testing.T) {
	// GIVEN: Bob has two blocks on Monday; Ada has her own assignment
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.SaveUser(ctx, generic.User{ID: otherUserID, Name: "Bob", Active: true}))
	bobs := bookAs(t, env, otherUserID, blk("2024-03-04", "09:00", "11:00"), blk("2024-03-04", "14:00", "16:00"))
	env.book(t, projectID, blk("2024-03-05", "09:00", "10:00"))

	// WHEN: Ada's submission edits Bob's afternoon block onto his morning
	edit := blk("2024-03-04", "09:30", "10:30")
	edit.ID = bobs[1].ID
	in := fixedInput(projectID)
	in.EditedTimeBlocks = []assignment.BlockInput{edit}
	_, err := env.service.ProcessFixedBlocks(ctx, in)

	// THEN: rejected, Bob's blocks are untouched
	assert.ErrorIs(t, err, generic.ErrTimeBlockNotFound)
	blocks := activeBlocksOf(t, env, otherUserID)
	require.Len(t, blocks, 2)
	assert.Equal(t, "09:00-11:00", blocks[0].Interval().String())
	assert.Equal(t, "14:00-16:00", blocks[1].Interval().String())
}

func TestFixedBlocks_DeleteOfAnotherUsersBlockRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.SaveUser(ctx, generic.User{ID: otherUserID, Name: "Bob", Active: true}))
	bobs := bookAs(t, env, otherUserID, blk("2024-03-04", "09:00", "11:00"))
	own := env.book(t, projectID, blk("2024-03-05", "09:00", "10:00"))

	// WHEN: Ada deletes her own block and Bob's in one submission
	in := fixedInput(projectID)
	in.DeletedTimeBlockIDs = []generic.TimeBlockID{own[0].ID, bobs[0].ID}
	_, err := env.service.ProcessFixedBlocks(ctx, in)

	// THEN: nothing is deleted
	assert.ErrorIs(t, err, generic.ErrTimeBlockNotFound)
	assert.Len(t, activeBlocksOf(t, env, otherUserID), 1)
	assert.Len(t, env.activeBlocks(t), 1)
}

func TestFixedBlocks_EditOfBlockOnAnotherProjectRejected(t *testing.T) {
	// GIVEN: Ada has blocks on both projects
	env := newTestEnv(t)
	ctx := context.Background()
	sprint := env.book(t, shortProjectID, blk("2024-03-04", "09:00", "10:00"))
	env.book(t, projectID, blk("2024-03-06", "09:00", "10:00"))

	// WHEN: it is edited through a submission for the long project
	edit := blk("2024-03-04", "10:00", "11:00")
	edit.ID = sprint[0].ID
	in := fixedInput(projectID)
	in.EditedTimeBlocks = []assignment.BlockInput{edit}
	_, err := env.service.ProcessFixedBlocks(ctx, in)

	// THEN: the block is not found for that assignment
	assert.ErrorIs(t, err, generic.ErrTimeBlockNotFound)
	blocks := env.activeBlocks(t)
	require.Len(t, blocks, 2)
	assert.Equal(t, sprint[0].ID, blocks[0].ID)
	assert.Equal(t, "09:00-10:00", blocks[0].Interval().String())
}

// =============================================================================
// DELETIONS AND ATOMICITY
// =============================================================================

func TestFixedBlocks_DeleteDeactivatesAndAudits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.book(t, projectID, blk("2024-03-04", "09:00", "12:00"), blk("2024-03-05", "09:00", "10:30"))

	in := fixedInput(projectID)
	in.DeletedTimeBlockIDs = []generic.TimeBlockID{created[0].ID, created[1].ID}
	res, err := env.service.ProcessFixedBlocks(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Empty(t, env.activeBlocks(t))

	audits, err := env.service.Audits(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, generic.AuditDelete, audits[0].Action)
	assert.Equal(t, map[string]any{"user_id": userID, "hours": 4.5}, audits[0].OldValues)
}

func TestFixedBlocks_DeleteFreesSlotForCreate(t *testing.T) {
	// GIVEN: a block at 09:00-12:00
	env := newTestEnv(t)
	created := env.book(t, projectID, blk("2024-03-04", "09:00", "12:00"))

	// WHEN: one submission deletes it and creates 10:00-11:00
	in := fixedInput(projectID, blk("2024-03-04", "10:00", "11:00"))
	in.DeletedTimeBlockIDs = []generic.TimeBlockID{created[0].ID}

	// THEN: creation sees the deletion
	_, err := env.service.ProcessFixedBlocks(context.Background(), in)
	require.NoError(t, err)
	blocks := env.activeBlocks(t)
	require.Len(t, blocks, 1)
	assert.Equal(t, "10:00-11:00", blocks[0].Interval().String())
}

func TestFixedBlocks_FailureRollsBackEarlierPhases(t *testing.T) {
	// GIVEN: an existing block
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.book(t, projectID, blk("2024-03-04", "09:00", "12:00"))

	// WHEN: deleting it alongside an invalid creation
	in := fixedInput(projectID, blk("2024-03-05", "15:00", "14:00"))
	in.DeletedTimeBlockIDs = []generic.TimeBlockID{created[0].ID}
	_, err := env.service.ProcessFixedBlocks(ctx, in)

	// THEN: the deletion is rolled back and no audit is written for it
	assert.ErrorIs(t, err, generic.ErrInvalidTimeRange)
	assert.Len(t, env.activeBlocks(t), 1)

	audits, err := env.service.Audits(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, audits, 1, "only the original create")
}

// =============================================================================
// INVARIANTS UNDER CONCURRENCY
// =============================================================================

func TestFixedBlocks_ConcurrentOverlappingSubmissions(t *testing.T) {
	// GIVEN: many submissions racing for the same slot
	env := newTestEnv(t)
	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.ProcessFixedBlocks(context.Background(),
				fixedInput(projectID, blk("2024-03-04", "09:00", "12:00")))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, generic.ErrOverlap)
		}()
	}
	wg.Wait()

	// THEN: exactly one wins and no two active blocks overlap
	assert.Equal(t, 1, successes)
	assert.Len(t, env.activeBlocks(t), 1)
}

func TestFixedBlocks_DailyCapHoldsAcrossSubmissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, b := range []assignment.BlockInput{
		blk("2024-03-04", "06:00", "09:00"),
		blk("2024-03-04", "09:00", "13:00"),
		blk("2024-03-04", "14:00", "17:00"),
		blk("2024-03-04", "17:00", "19:00"),
	} {
		_, _ = env.service.ProcessFixedBlocks(ctx, fixedInput(projectID, b))
	}

	total := dec("0")
	for _, tb := range env.activeBlocks(t) {
		total = total.Add(tb.DurationHours)
	}
	assert.True(t, total.LessThanOrEqual(dec("10")), "day holds %s hours", total)
}

// =============================================================================
// AUDIT FAILURES
// =============================================================================

type failingAudits struct {
	*store.Memory
}

func (failingAudits) AppendAudit(context.Context, generic.AuditEntry) error {
	return errors.New("audit table locked")
}

func TestFixedBlocks_AuditFailureDoesNotFailSubmission(t *testing.T) {
	env := newTestEnv(t)
	svc := assignment.NewService(failingAudits{env.store},
		assignment.WithClock(func() time.Time { return env.now }))

	_, err := svc.ProcessFixedBlocks(context.Background(), fixedInput(projectID, blk("2024-03-04", "09:00", "10:00")))
	require.NoError(t, err)
	assert.Len(t, env.activeBlocks(t), 1)
}
