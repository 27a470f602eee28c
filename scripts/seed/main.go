// Command seed loads a small demo dataset into the configured database:
// one academic term, a handful of courses and sections, demo students and
// the user accounts needed to log in against them. Intended for local
// development only.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/openuni/registrar-api/internal/models"
	"github.com/openuni/registrar-api/internal/repository"
	"github.com/openuni/registrar-api/pkg/config"
	"github.com/openuni/registrar-api/pkg/database"
)

func main() {
	var (
		password string
		timeout  time.Duration
	)

	flag.StringVar(&password, "password", "changeme123", "Password assigned to every seeded account")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall seeding timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Env == config.EnvProduction {
		log.Fatal("refusing to seed a production database")
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := seed(ctx, db, password); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
	log.Println("seeding complete")
}

func seed(ctx context.Context, db *sqlx.DB, password string) error {
	instructorID, err := seedUsers(ctx, db, password)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	terms := repository.NewTermRepository(db)
	deadline := time.Now().UTC().AddDate(0, 4, 0)
	term := &models.Term{
		Name:          "Fall 2026",
		AcademicYear:  "2026/2027",
		StartDate:     time.Now().UTC().AddDate(0, 0, -7),
		EndDate:       time.Now().UTC().AddDate(0, 4, -14),
		GradeDeadline: &deadline,
	}
	if err := terms.Create(ctx, term); err != nil {
		return fmt.Errorf("seed term: %w", err)
	}

	courses := repository.NewCourseRepository(db)
	sections := repository.NewSectionRepository(db)
	for _, c := range []struct {
		code, title string
		credits     int
		capacity    int
	}{
		{"CS101", "Introduction to Programming", 4, 120},
		{"CS250", "Data Structures", 4, 60},
		{"MA201", "Linear Algebra", 3, 80},
		{"HU110", "Academic Writing", 2, 40},
	} {
		course := &models.Course{Code: c.code, Title: c.title, Credits: c.credits}
		if err := courses.Create(ctx, course); err != nil {
			return fmt.Errorf("seed course %s: %w", c.code, err)
		}
		section := &models.CourseSection{
			CourseID:     course.ID,
			TermID:       term.ID,
			InstructorID: instructorID,
			Capacity:     c.capacity,
			Schedule:     "Mon/Wed 10:00-11:30",
		}
		if err := sections.Create(ctx, section); err != nil {
			return fmt.Errorf("seed section %s: %w", c.code, err)
		}
	}

	students := repository.NewStudentRepository(db)
	for i, name := range []string{"Ada Byron", "Grace Hopper", "Alan Kay", "Barbara Liskov", "Edsger Dijkstra"} {
		student := &models.Student{
			StudentNo: fmt.Sprintf("S-%04d", i+1),
			FullName:  name,
			Email:     fmt.Sprintf("student%d@openuni.example", i+1),
			Status:    models.StudentStatusActive,
		}
		if err := students.Create(ctx, student); err != nil {
			return fmt.Errorf("seed student %s: %w", student.StudentNo, err)
		}
	}

	return nil
}

// seedUsers inserts the demo accounts and returns the instructor id so the
// seeded sections can carry a real instructor of record.
func seedUsers(ctx context.Context, db *sqlx.DB, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	const query = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :full_name, :role, :active, :created_at, :updated_at)
        ON CONFLICT (email) DO NOTHING`

	var instructorID string
	now := time.Now().UTC()
	for _, u := range []struct {
		email, name string
		role        models.UserRole
	}{
		{"admin@openuni.example", "Site Admin", models.RoleAdmin},
		{"registrar@openuni.example", "University Registrar", models.RoleRegistrar},
		{"instructor@openuni.example", "Donald Knuth", models.RoleInstructor},
		{"student@openuni.example", "Ada Byron", models.RoleStudent},
	} {
		user := models.User{
			ID:           uuid.NewString(),
			Email:        u.email,
			PasswordHash: string(hash),
			FullName:     u.name,
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := db.NamedExecContext(ctx, query, user); err != nil {
			return "", fmt.Errorf("insert %s: %w", u.email, err)
		}
		if u.role == models.RoleInstructor {
			instructorID = user.ID
		}
	}
	return instructorID, nil
}
