// Package export renders duplicate groups for offline review.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	GroupsSheet  = "groups"
	MembersSheet = "members"
)

var (
	groupHeader  = []any{"group_id", "type", "status", "confidence", "match_criteria", "primary_user_id", "member_count", "detected_at"}
	memberHeader = []any{"group_id", "account_id", "primary", "display_name", "phone", "created_at", "verified", "inactive", "dependent_total", "failed_counts"}
)

// WriteGroups writes an xlsx workbook with one row per group and one row per
// group member.
func WriteGroups(w io.Writer, groups []models.DuplicateGroup) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", GroupsSheet); err != nil {
		return fmt.Errorf("failed to name groups sheet: %w", err)
	}
	if _, err := f.NewSheet(MembersSheet); err != nil {
		return fmt.Errorf("failed to create members sheet: %w", err)
	}

	if err := setRow(f, GroupsSheet, 1, groupHeader); err != nil {
		return err
	}
	if err := setRow(f, MembersSheet, 1, memberHeader); err != nil {
		return err
	}

	memberRow := 2
	for i, g := range groups {
		row := []any{
			g.ID,
			string(g.Type),
			string(g.Status),
			string(g.Confidence),
			strings.Join(g.MatchCriteria, ", "),
			g.PrimaryUserID,
			len(g.UserIDs),
			g.DetectedAt.Format(time.RFC3339),
		}
		if err := setRow(f, GroupsSheet, i+2, row); err != nil {
			return err
		}

		for _, a := range g.Metadata.Data.Accounts {
			member := []any{
				g.ID,
				a.AccountID,
				a.AccountID == g.PrimaryUserID,
				a.DisplayName,
				a.Phone,
				a.CreatedAt.Format(time.RFC3339),
				a.IsVerified,
				a.Inactive,
				a.Total(),
				strings.Join(a.FailedCounts, ", "),
			}
			if err := setRow(f, MembersSheet, memberRow, member); err != nil {
				return err
			}
			memberRow++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
