package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/config"
	"github.com/stemsi/checkio-backend/internal/database"
	"github.com/stemsi/checkio-backend/internal/logger"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
	"github.com/stemsi/checkio-backend/internal/repository"
	"github.com/stemsi/checkio-backend/internal/service"
)

// demoRoster is seeded when no CSV file is given.
var demoRoster = []model.Student{
	{FirstName: "Budi", LastName: "Santoso", Grade: "1"},
	{FirstName: "Siti", LastName: "Aminah", Grade: "1"},
	{FirstName: "Andi", LastName: "Pratama", Grade: "2"},
	{FirstName: "Rina", LastName: "Wati", Grade: "2"},
	{FirstName: "Joko", LastName: "Susilo", Grade: "3"},
	{FirstName: "Ayu", LastName: "Lestari", Grade: "3"},
	{FirstName: "Dodi", LastName: "Kusuma", Grade: "4"},
	{FirstName: "Eka", LastName: "Putri", Grade: "4"},
	{FirstName: "Fahri", LastName: "Hamzah", Grade: "5"},
	{FirstName: "Gita", LastName: "Savitri", Grade: "5"},
	{FirstName: "Hendra", LastName: "Gunawan", Grade: "6"},
	{FirstName: "Ika", LastName: "Sari", Grade: "6"},
	{FirstName: "Lukman", LastName: "Hakim", Grade: "K"},
	{FirstName: "Maya", LastName: "Septiana", Grade: "K"},
}

func main() {
	var file string
	flag.StringVar(&file, "file", "", "CSV roster with first_name,last_name[,grade] columns")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	students := demoRoster
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("Failed to open roster")
		}
		students, err = readRoster(f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("Failed to read roster")
		}
	}
	if len(students) == 0 {
		fmt.Println("Nothing to seed.")
		return
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	store := recordstore.NewPostgres(pool)
	studentService := service.NewStudentService(
		repository.NewStudentRepository(store),
		repository.NewRelationRepository(store),
		repository.NewUserRepository(store),
		appstate.New(),
		log,
	)

	fmt.Printf("=== Seeding %d Students ===\n", len(students))

	n, err := studentService.Import(ctx, students)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to import students")
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d students.\n", n, len(students))
}

// readRoster parses a roster CSV. A header row is detected by its
// first_name column and skipped. Blank lines are ignored.
func readRoster(r io.Reader) ([]model.Student, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []model.Student
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line++

		if line == 1 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "first_name") {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want first_name,last_name[,grade], got %d columns", line, len(rec))
		}

		st := model.Student{
			FirstName: strings.TrimSpace(rec[0]),
			LastName:  strings.TrimSpace(rec[1]),
		}
		if len(rec) > 2 {
			st.Grade = strings.TrimSpace(rec[2])
		}
		if st.FirstName == "" || st.LastName == "" {
			return nil, fmt.Errorf("line %d: first and last name are required", line)
		}
		out = append(out, st)
	}
}
