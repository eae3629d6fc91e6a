package report_test

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/report"
)

var _ = Describe("Write", func() {
	var result models.MigrationResult

	BeforeEach(func() {
		started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		result = models.NewMigrationResult(uuid.New(), []models.VMResult{
			{Ordinal: 3, VMName: "db", Outcome: models.MigrationOutcomeFailed, Reason: "unauthorized", Attempts: 1},
			{Ordinal: 1, VMName: "web", Outcome: models.MigrationOutcomeSucceeded, TargetID: "101", Attempts: 2, StartedAt: started},
		}, false, started, started.Add(time.Hour))
		result.Source = models.PlatformESXi
		result.Destination = models.PlatformProxmox
	})

	It("renders a summary sheet and one row per vm", func() {
		// Given
		var buf bytes.Buffer

		// When
		Expect(report.Write(&buf, result)).To(Succeed())

		// Then
		f, err := excelize.OpenReader(&buf)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(f.GetSheetList()).To(Equal([]string{report.SummarySheet, report.VMsSheet}))

		status, err := f.GetCellValue(report.SummarySheet, "B4")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal("completed"))

		rows, err := f.GetRows(report.VMsSheet)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0][0]).To(Equal("Ordinal"))
		Expect(rows[1][:4]).To(Equal([]string{"1", "web", "succeeded", "101"}))
		Expect(rows[1][6]).To(Equal("2026-03-01T10:00:00Z"))
		Expect(rows[2][:3]).To(Equal([]string{"3", "db", "failed"}))
		Expect(rows[2][5]).To(Equal("unauthorized"))
	})

	It("marks aborted runs", func() {
		result.Aborted = true
		var buf bytes.Buffer

		Expect(report.Write(&buf, result)).To(Succeed())

		f, err := excelize.OpenReader(&buf)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		status, _ := f.GetCellValue(report.SummarySheet, "B4")
		Expect(status).To(Equal("aborted"))
	})

	It("names the file after the run", func() {
		Expect(report.FileName(result)).To(Equal("migration-" + result.ID.String() + ".xlsx"))
	})
})
