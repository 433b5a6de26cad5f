package api

import (
	"encoding/csv"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/uvotredux/internal/errors"
	"github.com/tphakala/uvotredux/internal/ledger"
	"github.com/tphakala/uvotredux/internal/photometry"
)

// RunsResponse lists ledger runs, newest first
type RunsResponse struct {
	Runs  []ledger.Run `json:"runs"`
	Count int          `json:"count"`
}

// SummaryResponse holds the rows of a target's uvot_summary.csv keyed by column
type SummaryResponse struct {
	Target  string              `json:"target"`
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	Count   int                 `json:"count"`
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func (s *Server) listRuns(c echo.Context) error {
	limit := ledger.DefaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return HandleError(c, err, "limit must be a positive integer", http.StatusBadRequest)
		}
		limit = n
	}

	runs, err := s.store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return HandleError(c, err, "failed to list runs", http.StatusInternalServerError)
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	return c.JSON(http.StatusOK, RunsResponse{Runs: runs, Count: len(runs)})
}

func (s *Server) getRun(c echo.Context) error {
	id := c.Param("id")
	run, err := s.store.GetRun(c.Request().Context(), id)
	if err != nil {
		code := statusFor(err)
		message := "failed to load run"
		if code == http.StatusNotFound {
			message = "run " + id + " not found"
		}
		return HandleError(c, err, message, code)
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) targetSummary(c echo.Context) error {
	name := c.Param("name")
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return HandleError(c, nil, "invalid target name", http.StatusBadRequest)
	}

	path := filepath.Join(s.config.DataDir, name, photometry.SummaryFile)
	resp, err := readSummary(path)
	if err != nil {
		code := statusFor(err)
		message := "failed to read photometry summary"
		if code == http.StatusNotFound {
			message = "no photometry summary for target " + name
		}
		return HandleError(c, err, message, code)
	}
	resp.Target = name
	return c.JSON(http.StatusOK, resp)
}

// readSummary loads a summary CSV as column keyed rows
func readSummary(path string) (*SummaryResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Component("api").
			Category(category).
			FileContext(path).
			Build()
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, summaryParseError(path, err)
	}

	resp := &SummaryResponse{Columns: header, Rows: []map[string]string{}}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, summaryParseError(path, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		resp.Rows = append(resp.Rows, row)
	}
	resp.Count = len(resp.Rows)
	return resp, nil
}

func summaryParseError(path string, err error) error {
	return errors.New(err).
		Component("api").
		Category(errors.CategoryFileParsing).
		FileContext(path).
		Build()
}
