// generate_issues_csv writes a large issue-shaped CSV file, used to exercise
// "jiraexport custom" and the history snapshot with realistic data.
package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/jiraexport/jiraexport-go/internal/converter"
	"github.com/jiraexport/jiraexport-go/internal/csvdoc"
	"github.com/jiraexport/jiraexport-go/internal/exporter"
)

var (
	statuses   = []string{"To Do", "In Progress", "In Review", "Done"}
	priorities = []string{"Highest", "High", "Medium", "Low"}
	people     = []string{"Jo", "Lee, Sam", "Ana \"AJ\" Jones", ""}
	labels     = []string{"backend", "frontend", "csv", "export", "ux"}
)

func main() {
	var (
		rows       = pflag.Int("rows", 100000, "Number of issues to generate")
		output     = pflag.String("output", "large_issues.csv.gz", "Output file path (.gz compresses)")
		project    = pflag.String("project", "PS", "Project key")
		seed       = pflag.Int64("seed", time.Now().UnixNano(), "Random seed")
		batchSize  = pflag.Int("batch", 10000, "Rows rendered per write")
		flushEvery = pflag.Int("flush-every", 100000, "Print progress every N rows")
	)
	pflag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	file, err := exporter.OpenOutputFile(afero.NewOsFs(), *output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
		os.Exit(1)
	}

	fields := converter.DefaultFields()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.Label
	}

	if _, err := io.WriteString(file, csvdoc.RowToLine(csvdoc.Strings(headers))); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing header: %v\n", err)
		os.Exit(1)
	}

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	batch := make([]csvdoc.Row, 0, *batchSize)
	for i := 0; i < *rows; i++ {
		created := start.Add(time.Duration(rng.Intn(365*24)) * time.Hour)
		row := csvdoc.Row{
			"Issue Key":   csvdoc.String(fmt.Sprintf("%s-%d", *project, i+1)),
			"Summary":     csvdoc.String(fmt.Sprintf("Issue %d, generated", i+1)),
			"Description": csvdoc.String(fmt.Sprintf("Line one\nLine %d", rng.Intn(100))),
			"Issue Type":  csvdoc.String("Story"),
			"Status":      csvdoc.String(statuses[rng.Intn(len(statuses))]),
			"Priority":    csvdoc.String(priorities[rng.Intn(len(priorities))]),
			"Assignee":    csvdoc.String(people[rng.Intn(len(people))]),
			"Reporter":    csvdoc.String(people[rng.Intn(len(people)-1)]),
			"Project":     csvdoc.String("Planning Studio"),
			"Project Key": csvdoc.String(*project),
			"Created":     csvdoc.String(created.Format(time.RFC3339)),
			"Updated":     csvdoc.String(created.Add(48 * time.Hour).Format(time.RFC3339)),
			"Labels":      csvdoc.String(strings.Join(labels[:rng.Intn(len(labels))], ", ")),
		}
		if points := rng.Intn(14); points > 0 {
			row["Story Points"] = csvdoc.Int(int64(points))
		}
		batch = append(batch, row)

		if len(batch) >= *batchSize || i == *rows-1 {
			doc := csvdoc.BuildDocumentColumns(headers, batch, false)
			if _, err := io.WriteString(file, "\n"+doc); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing batch: %v\n", err)
				os.Exit(1)
			}
			batch = batch[:0]
		}
		if (i+1)%*flushEvery == 0 {
			fmt.Fprintf(os.Stderr, "Generated %d rows...\n", i+1)
		}
	}

	if err := file.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing file: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Successfully generated %d issues in %s\n", *rows, *output)
}
