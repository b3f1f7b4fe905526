package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"occupancy/internal/models"
	"occupancy/internal/repository"
	"occupancy/internal/repository/sqlite"
)

type importEntry struct {
	Name      string    `json:"name"`
	Embedding []float64 `json:"embedding"`
}

var (
	addName          string
	addEmbeddingPath string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an employee with a reference face embedding",
	RunE: func(cmd *cobra.Command, args []string) error {
		embedding, err := readEmbedding(addEmbeddingPath)
		if err != nil {
			return err
		}

		emp := &models.Employee{Name: addName, Embedding: embedding}
		id, err := sqlite.NewEmployeeRepository(db).Insert(cmd.Context(), emp)
		if err != nil {
			return err
		}

		fmt.Printf("✅ Added employee %q with id %d (%d-d embedding)\n", addName, id, len(embedding))
		reloadHint()
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all employees",
	RunE: func(cmd *cobra.Command, args []string) error {
		employees, err := sqlite.NewEmployeeRepository(db).List(cmd.Context())
		if err != nil {
			return err
		}

		if len(employees) == 0 {
			fmt.Println("No employees found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tEMBEDDING\tCREATED")
		fmt.Fprintln(w, "--\t----\t------\t---------\t-------")
		for _, emp := range employees {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", emp.ID, emp.Name, emp.Status, len(emp.Embedding), emp.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Stop recognizing an employee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid employee id %q", args[0])
		}

		err = sqlite.NewEmployeeRepository(db).Deactivate(cmd.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("employee %d not found", id)
		}
		if err != nil {
			return err
		}

		fmt.Printf("✅ Employee %d deactivated\n", id)
		reloadHint()
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Bulk import employees from a JSON array of {name, embedding}",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := readImportFile(args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Nothing to import")
			return nil
		}

		repo := sqlite.NewEmployeeRepository(db)
		bar := progressbar.NewOptions(len(entries),
			progressbar.OptionSetDescription("👥 Importing employees"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		imported, skipped := 0, 0
		for _, entry := range entries {
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			if _, err := repo.Insert(cmd.Context(), &models.Employee{Name: entry.Name, Embedding: entry.Embedding}); err != nil {
				fmt.Fprintf(os.Stderr, "\n⚠️  Skipping %q: %v\n", entry.Name, err)
				skipped++
			} else {
				imported++
			}
			bar.Add(1)
		}
		bar.Finish()

		fmt.Printf("\n✅ Imported %d employee(s)", imported)
		if skipped > 0 {
			fmt.Printf(", skipped %d", skipped)
		}
		fmt.Println()
		reloadHint()
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "Employee name")
	addCmd.Flags().StringVar(&addEmbeddingPath, "embedding", "", "Path to a JSON array holding the face embedding")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("embedding")

	rootCmd.AddCommand(addCmd, listCmd, deactivateCmd, importCmd)
}

func readEmbedding(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding file: %w", err)
	}

	var embedding []float64
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, fmt.Errorf("embedding file must hold a JSON array of numbers: %w", err)
	}
	if len(embedding) == 0 {
		return nil, errors.New("embedding is empty")
	}
	return embedding, nil
}

func readImportFile(path string) ([]importEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	var entries []importEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("import file must hold a JSON array of {name, embedding}: %w", err)
	}

	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d has no name", i)
		}
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("entry %d (%s) has no embedding", i, e.Name)
		}
	}
	return entries, nil
}
