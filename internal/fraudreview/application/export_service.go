package application

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"iter"
	"strconv"

	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/metrics"
	"github.com/xuri/excelize/v2"
)

// ExportTimeLayout 导出时间格式，统一为 UTC
const ExportTimeLayout = "2006-01-02 15:04:05"

const (
	fraudToken = "Fraud"
	legitToken = "Legit"
	sheetName  = "Transactions"
)

// ExportColumns 导出列，顺序固定
var ExportColumns = []string{
	"Date", "Transaction ID", "Direction", "Counterparty Account", "Counterparty Name",
	"Amount", "Currency", "Description", "Status", "Risk Score", "Fraud Probability", "Fraud",
}

// ExportFormat 导出格式
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

// ParseExportFormat 空值默认为 csv
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch raw {
	case "", string(FormatCSV):
		return FormatCSV, nil
	case string(FormatXLSX):
		return FormatXLSX, nil
	}
	return "", domain.NewValidationError("format", "must be csv or xlsx")
}

// ContentType 响应类型
func (f ExportFormat) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ExportService 交易导出
// 相同的交易列表与查看者总是产生逐字节相同的 CSV
type ExportService struct {
	metrics *metrics.Metrics
}

// NewExportService 创建导出服务
func NewExportService(m *metrics.Metrics) *ExportService {
	return &ExportService{metrics: m}
}

// Record 单笔交易的导出字段
// 转出金额为负，转入为正，保留两位小数
func Record(t *domain.Transaction, viewer domain.Viewer) []string {
	direction := "Incoming"
	counterpartyAccount, counterpartyName := t.SenderAccountID, t.SenderName
	amount := t.Amount
	if t.IsOutgoingFor(viewer) {
		direction = "Outgoing"
		counterpartyAccount, counterpartyName = t.ReceiverAccountID, t.ReceiverName
		amount = amount.Neg()
	}
	fraud := legitToken
	if t.IsFraud {
		fraud = fraudToken
	}
	return []string{
		t.CreatedAt.UTC().Format(ExportTimeLayout),
		t.ID,
		direction,
		counterpartyAccount,
		counterpartyName,
		amount.StringFixed(2),
		t.Currency,
		t.Description,
		string(t.Status),
		strconv.Itoa(t.RiskScore),
		strconv.FormatFloat(t.FraudProbability, 'f', 4, 64),
		fraud,
	}
}

// Rows 惰性生成 CSV 行（含换行），首行为表头
// ctx 取消后产出 ctx.Err() 并停止
func (s *ExportService) Rows(ctx context.Context, txns []*domain.Transaction, viewer domain.Viewer) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		encode := func(record []string) (string, error) {
			buf.Reset()
			if err := w.Write(record); err != nil {
				return "", err
			}
			w.Flush()
			if err := w.Error(); err != nil {
				return "", err
			}
			return buf.String(), nil
		}

		line, err := encode(ExportColumns)
		if !yield(line, err) || err != nil {
			return
		}
		for _, t := range txns {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			line, err := encode(Record(t, viewer))
			if !yield(line, err) || err != nil {
				return
			}
		}
	}
}

// WriteCSV 将行依次写入 w，返回写入的数据行数
func (s *ExportService) WriteCSV(ctx context.Context, w io.Writer, txns []*domain.Transaction, viewer domain.Viewer) (int, error) {
	rows := -1
	for line, err := range s.Rows(ctx, txns, viewer) {
		if err != nil {
			return max(rows, 0), err
		}
		if _, err := io.WriteString(w, line); err != nil {
			return max(rows, 0), err
		}
		rows++
	}
	s.metrics.RecordExportRows(string(FormatCSV), rows)
	return rows, nil
}

// WriteXLSX 以流式方式生成工作簿，完成后整体写入 w
func (s *ExportService) WriteXLSX(ctx context.Context, w io.Writer, txns []*domain.Transaction, viewer domain.Viewer) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return 0, err
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return 0, err
	}

	header := make([]any, len(ExportColumns))
	for i, c := range ExportColumns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, err
	}

	for i, t := range txns {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		rec := Record(t, viewer)
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		amount := t.Amount
		if t.IsOutgoingFor(viewer) {
			amount = amount.Neg()
		}
		row[5] = amount.InexactFloat64()
		row[9] = t.RiskScore
		row[10] = t.FraudProbability

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return i, err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return i, err
		}
	}
	if err := sw.Flush(); err != nil {
		return len(txns), err
	}
	if err := f.Write(w); err != nil {
		return len(txns), err
	}
	s.metrics.RecordExportRows(string(FormatXLSX), len(txns))
	return len(txns), nil
}

// Write 按格式导出
func (s *ExportService) Write(ctx context.Context, format ExportFormat, w io.Writer, txns []*domain.Transaction, viewer domain.Viewer) (int, error) {
	if format == FormatXLSX {
		return s.WriteXLSX(ctx, w, txns, viewer)
	}
	return s.WriteCSV(ctx, w, txns, viewer)
}
