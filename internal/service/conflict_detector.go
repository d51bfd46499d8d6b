package service

import (
	"fmt"

	"github.com/educhain-labs/governance-api/internal/models"
)

// ScheduleInterval is a proposed occupancy of a room and lecturer on one
// day. Times are minutes since midnight forming a half-open interval
// [Start, End); schedules touching at a boundary do not conflict.
type ScheduleInterval struct {
	RoomID     string
	LecturerID string
	DayOfWeek  int
	Start      int
	End        int
	Semester   string
}

// Overlaps reports whether two half-open intervals intersect.
func Overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

// DetectConflicts checks the proposal against the room-indexed and
// lecturer-indexed schedule sets. Room conflicts are reported first, then
// lecturer conflicts, each set ordered by the colliding schedule's start
// time. ignoreID excludes the schedule being revalidated or rescheduled.
// An empty result means the proposal is admissible.
func DetectConflicts(proposal ScheduleInterval, roomPeers, lecturerPeers []models.Schedule, ignoreID string) []models.Conflict {
	var conflicts []models.Conflict
	conflicts = append(conflicts, detectAxis(proposal, roomPeers, models.ConflictTypeRoom, ignoreID)...)
	conflicts = append(conflicts, detectAxis(proposal, lecturerPeers, models.ConflictTypeLecturer, ignoreID)...)
	return conflicts
}

func detectAxis(proposal ScheduleInterval, peers []models.Schedule, axis models.ConflictType, ignoreID string) []models.Conflict {
	var conflicts []models.Conflict
	for _, peer := range peers {
		if peer.ID == ignoreID {
			continue
		}
		start, err := models.ParseClockTime(peer.StartTime)
		if err != nil {
			continue
		}
		end, err := models.ParseClockTime(peer.EndTime)
		if err != nil {
			continue
		}
		if !Overlaps(proposal.Start, proposal.End, start, end) {
			continue
		}
		conflicts = append(conflicts, models.Conflict{
			Type:       axis,
			ScheduleID: peer.ID,
			Message:    conflictMessage(axis, peer),
			Suggestion: suggestShift(proposal, end),
		})
	}
	return conflicts
}

func conflictMessage(axis models.ConflictType, peer models.Schedule) string {
	switch axis {
	case models.ConflictTypeRoom:
		return fmt.Sprintf("room already booked %s-%s", peer.StartTime, peer.EndTime)
	case models.ConflictTypeLecturer:
		return fmt.Sprintf("lecturer already scheduled %s-%s", peer.StartTime, peer.EndTime)
	default:
		return "schedule overlap"
	}
}

// suggestShift proposes moving the start so the proposal begins where the
// colliding schedule ends, preserving duration.
func suggestShift(proposal ScheduleInterval, peerEnd int) string {
	shift := peerEnd - proposal.Start
	if shift <= 0 {
		return ""
	}
	duration := proposal.End - proposal.Start
	newStart := peerEnd
	newEnd := newStart + duration
	if newEnd > 24*60 {
		return ""
	}
	hours := float64(shift) / 60
	return fmt.Sprintf("shift start time by %.1fh to %s", hours, models.FormatClockTime(newStart))
}
