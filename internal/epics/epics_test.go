package epics

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cbarrett/foreman/internal/models"
	"github.com/cbarrett/foreman/internal/queue"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Credential{},
		&models.Repository{},
		&models.Epic{},
		&models.Task{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func seedUserAndRepo(t *testing.T, db *gorm.DB) (*models.User, *models.Repository) {
	t.Helper()
	user := models.User{Email: "dev@example.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	repo := models.Repository{UserID: user.ID, Name: "org/app", GitHubURL: "https://github.com/org/app"}
	if err := db.Create(&repo).Error; err != nil {
		t.Fatal(err)
	}
	return &user, &repo
}

type fakeQueue struct {
	jobs []struct {
		Name   string
		TaskID uint
	}
	err error
}

func (q *fakeQueue) Enqueue(name string, taskID uint) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, struct {
		Name   string
		TaskID uint
	}{name, taskID})
	return nil
}

func TestCreate_OrderedTasks(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)

	epic, err := Create(db, CreateOpts{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Title:        "Widget rollout",
		Tasks:        []string{"build the widget", "wire the widget", "ship the widget"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if epic.Status != models.EpicPending {
		t.Errorf("status = %s, want pending", epic.Status)
	}
	if epic.BaseBranch != "main" {
		t.Errorf("base branch = %q, want main", epic.BaseBranch)
	}
	if epic.Prompt != "Manual spec with 3 tasks" {
		t.Errorf("prompt = %q", epic.Prompt)
	}

	var tasks []models.Task
	if err := db.Where("epic_id = ?", epic.ID).Order("position ASC").Find(&tasks).Error; err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 {
		t.Fatalf("task count = %d", len(tasks))
	}
	for i, task := range tasks {
		if task.Position != i {
			t.Errorf("task %d position = %d", i, task.Position)
		}
		if task.Status != models.TaskPending {
			t.Errorf("task %d status = %s", i, task.Status)
		}
	}
	if tasks[0].Description != "build the widget" || tasks[2].Description != "ship the widget" {
		t.Errorf("task order not preserved: %q, %q", tasks[0].Description, tasks[2].Description)
	}
}

func TestCreate_TitleDerivedFromFirstTask(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)

	short, err := Create(db, CreateOpts{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Tasks:        []string{"fix the login flow"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if short.Title != "fix the login flow" {
		t.Errorf("title = %q", short.Title)
	}

	long := strings.Repeat("a", 60)
	truncated, err := Create(db, CreateOpts{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Tasks:        []string{long},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := strings.Repeat("a", 48) + "..."
	if truncated.Title != want {
		t.Errorf("title = %q, want %q", truncated.Title, want)
	}

	multibyte, err := Create(db, CreateOpts{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Tasks:        []string{strings.Repeat("é", 60)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want = strings.Repeat("é", 48) + "..."
	if multibyte.Title != want {
		t.Errorf("title = %q, want %q", multibyte.Title, want)
	}
	if !utf8.ValidString(multibyte.Title) {
		t.Errorf("title is not valid UTF-8: %q", multibyte.Title)
	}
}

func TestCreate_Validations(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)

	cases := []struct {
		name    string
		opts    CreateOpts
		wantErr string
	}{
		{"no user", CreateOpts{RepositoryID: repo.ID, Tasks: []string{"x"}}, "user is required"},
		{"no repository", CreateOpts{UserID: user.ID, Tasks: []string{"x"}}, "repository is required"},
		{"no tasks", CreateOpts{UserID: user.ID, RepositoryID: repo.ID}, "at least one task"},
		{"blank task", CreateOpts{UserID: user.ID, RepositoryID: repo.ID, Tasks: []string{"x", "  "}}, "index 1 cannot be blank"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Create(db, tc.opts)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}

	var epicCount int64
	if err := db.Model(&models.Epic{}).Count(&epicCount).Error; err != nil {
		t.Fatal(err)
	}
	if epicCount != 0 {
		t.Errorf("rejected creates must not persist epics, count = %d", epicCount)
	}
}

func TestCreate_AgentCredentialValidated(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)

	other := models.User{Email: "other@example.com"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatal(err)
	}
	foreign := models.Credential{UserID: other.ID, ServiceName: models.ServiceCursorAgent, Name: "theirs", APIKey: "k"}
	if err := db.Create(&foreign).Error; err != nil {
		t.Fatal(err)
	}
	github := models.Credential{UserID: user.ID, ServiceName: models.ServiceGitHub, Name: "gh", APIKey: "k"}
	if err := db.Create(&github).Error; err != nil {
		t.Fatal(err)
	}
	valid := models.Credential{UserID: user.ID, ServiceName: models.ServiceCursorAgent, Name: "mine", APIKey: "k"}
	if err := db.Create(&valid).Error; err != nil {
		t.Fatal(err)
	}

	base := CreateOpts{UserID: user.ID, RepositoryID: repo.ID, Tasks: []string{"x"}}

	opts := base
	opts.AgentCredentialID = &foreign.ID
	if _, err := Create(db, opts); err == nil || !strings.Contains(err.Error(), "belong to the user") {
		t.Errorf("foreign credential err = %v", err)
	}

	opts = base
	opts.AgentCredentialID = &github.ID
	if _, err := Create(db, opts); err == nil || !strings.Contains(err.Error(), models.ServiceCursorAgent) {
		t.Errorf("wrong service err = %v", err)
	}

	opts = base
	opts.AgentCredentialID = &valid.ID
	epic, err := Create(db, opts)
	if err != nil {
		t.Fatalf("valid credential rejected: %v", err)
	}
	if epic.AgentCredentialID == nil || *epic.AgentCredentialID != valid.ID {
		t.Errorf("credential not recorded: %+v", epic.AgentCredentialID)
	}
}

func TestStart_EnqueuesFirstPendingTask(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)
	epic, err := Create(db, CreateOpts{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Tasks:        []string{"first", "second"},
	})
	if err != nil {
		t.Fatal(err)
	}

	q := &fakeQueue{}
	started, err := Start(db, q, user.ID, epic.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != models.EpicRunning {
		t.Errorf("status = %s, want running", started.Status)
	}

	var persisted models.Epic
	if err := db.First(&persisted, epic.ID).Error; err != nil {
		t.Fatal(err)
	}
	if persisted.Status != models.EpicRunning {
		t.Errorf("persisted status = %s", persisted.Status)
	}

	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}
	if q.jobs[0].Name != queue.JobDispatch {
		t.Errorf("job = %q, want %q", q.jobs[0].Name, queue.JobDispatch)
	}
	if q.jobs[0].TaskID != epic.Tasks[0].ID {
		t.Errorf("enqueued task %d, want first task %d", q.jobs[0].TaskID, epic.Tasks[0].ID)
	}
}

func TestStart_SkipsNonPendingTasks(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)
	epic, err := Create(db, CreateOpts{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Tasks:        []string{"first", "second"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Model(&models.Task{}).Where("id = ?", epic.Tasks[0].ID).
		Update("status", models.TaskCompleted).Error; err != nil {
		t.Fatal(err)
	}

	q := &fakeQueue{}
	if _, err := Start(db, q, user.ID, epic.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(q.jobs) != 1 || q.jobs[0].TaskID != epic.Tasks[1].ID {
		t.Errorf("jobs = %+v, want only the pending second task", q.jobs)
	}
}

func TestStart_DispatchesLowestPositionNotInsertionOrder(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)
	epic := models.Epic{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Title:        "epic",
		Prompt:       "p",
		BaseBranch:   "main",
		Status:       models.EpicPending,
	}
	if err := db.Create(&epic).Error; err != nil {
		t.Fatal(err)
	}

	// Insertion order deliberately disagrees with position order, so picking
	// by id or created_at would grab the wrong task.
	byPosition := map[int]uint{}
	for _, pos := range []int{5, 1, 3} {
		task := models.Task{EpicID: epic.ID, Description: "task", Position: pos, Status: models.TaskPending}
		if err := db.Create(&task).Error; err != nil {
			t.Fatal(err)
		}
		byPosition[pos] = task.ID
	}

	q := &fakeQueue{}
	if _, err := Start(db, q, user.ID, epic.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
	}
	if q.jobs[0].TaskID != byPosition[1] {
		t.Errorf("enqueued task %d, want position-1 task %d", q.jobs[0].TaskID, byPosition[1])
	}
}

func TestStart_NoPendingTasksIsValid(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)
	epic, err := Create(db, CreateOpts{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Tasks:        []string{"only"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Model(&models.Task{}).Where("epic_id = ?", epic.ID).
		Update("status", models.TaskCompleted).Error; err != nil {
		t.Fatal(err)
	}

	q := &fakeQueue{}
	started, err := Start(db, q, user.ID, epic.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != models.EpicRunning {
		t.Errorf("status = %s", started.Status)
	}
	if len(q.jobs) != 0 {
		t.Errorf("jobs = %+v, want none", q.jobs)
	}
}

func TestStart_Rejections(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)
	other := models.User{Email: "other@example.com"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatal(err)
	}
	epic, err := Create(db, CreateOpts{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Tasks:        []string{"x"},
	})
	if err != nil {
		t.Fatal(err)
	}

	q := &fakeQueue{}

	if _, err := Start(db, q, user.ID, 999); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing epic err = %v", err)
	}
	if _, err := Start(db, q, other.ID, epic.ID); err == nil || !strings.Contains(err.Error(), "belong to the user") {
		t.Errorf("foreign epic err = %v", err)
	}

	if err := db.Model(&models.Epic{}).Where("id = ?", epic.ID).
		Update("status", models.EpicRunning).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := Start(db, q, user.ID, epic.ID); err == nil || !strings.Contains(err.Error(), "pending status") {
		t.Errorf("non-pending err = %v", err)
	}

	if len(q.jobs) != 0 {
		t.Errorf("rejected starts must not enqueue, jobs = %+v", q.jobs)
	}
}

func TestStart_NoTasks(t *testing.T) {
	db := openTestDB(t)
	user, repo := seedUserAndRepo(t, db)
	epic := models.Epic{
		UserID:       user.ID,
		RepositoryID: repo.ID,
		Title:        "empty",
		Prompt:       "p",
		BaseBranch:   "main",
		Status:       models.EpicPending,
	}
	if err := db.Create(&epic).Error; err != nil {
		t.Fatal(err)
	}

	_, err := Start(db, &fakeQueue{}, user.ID, epic.ID)
	if err == nil || !strings.Contains(err.Error(), "at least one task") {
		t.Errorf("err = %v", err)
	}

	var reloaded models.Epic
	if err := db.First(&reloaded, epic.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.EpicPending {
		t.Errorf("status = %s, rejection must not mutate the epic", reloaded.Status)
	}
}
