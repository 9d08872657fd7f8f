package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scorelab/scorefold/internal/model"
)

type launchRequest struct {
	RunID string `json:"runId"`
	Mode  string `json:"mode"`
}

type launchResponse struct {
	RunID  string `json:"runId"`
	Mode   string `json:"mode"`
	Status string `json:"status"`
}

type laneResponse struct {
	PartitionIndex  int      `json:"partitionIndex"`
	State           string   `json:"state"`
	LastCommittedID int64    `json:"lastCommittedId"`
	ReadCount       int      `json:"readCount"`
	WriteCount      int      `json:"writeCount"`
	CommitCount     int      `json:"commitCount"`
	RollbackCount   int      `json:"rollbackCount"`
	Failures        []string `json:"failures,omitempty"`
}

type runResponse struct {
	RunID          string         `json:"runId"`
	Mode           string         `json:"mode"`
	Status         string         `json:"status"`
	PartitionCount int            `json:"partitionCount"`
	ChunkSize      int            `json:"chunkSize"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	Failures       []string       `json:"failures,omitempty"`
	Lanes          []laneResponse `json:"lanes"`
}

func newRunResponse(run *model.RunExecution, lanes []*model.LaneExecution) runResponse {
	resp := runResponse{
		RunID:          run.ID,
		Mode:           string(run.Mode),
		Status:         string(run.Status),
		PartitionCount: run.PartitionCount,
		ChunkSize:      run.ChunkSize,
		StartTime:      run.StartTime,
		EndTime:        run.EndTime,
		Failures:       run.Failures,
		Lanes:          make([]laneResponse, 0, len(lanes)),
	}
	for _, lane := range lanes {
		resp.Lanes = append(resp.Lanes, laneResponse{
			PartitionIndex:  lane.PartitionIndex,
			State:           string(lane.State),
			LastCommittedID: lane.LastCommittedID,
			ReadCount:       lane.ReadCount,
			WriteCount:      lane.WriteCount,
			CommitCount:     lane.CommitCount,
			RollbackCount:   lane.RollbackCount,
			Failures:        lane.Failures,
		})
	}
	return resp
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		// An empty body launches with defaults.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
