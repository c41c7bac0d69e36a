package routes

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/engine"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// UploadRequest carries the form fields sent next to the file
type UploadRequest struct {
	BatchID       string `form:"batch_id" validate:"omitempty,max=128"`
	EmailColumn   string `form:"email_column"`
	PhoneColumn   string `form:"phone_column"`
	Sheet         string `form:"sheet"`
	Delimiter     string `form:"delimiter" validate:"omitempty,max=4"`
	NumbersAsText bool   `form:"numbers_as_text"`
	Header        string `form:"header" validate:"omitempty,oneof=auto present absent"`
	// Columns renames columns by position, comma separated; empty entries
	// keep the name read from the file
	Columns string `form:"columns"`
}

// Upload handles POST /batches
func (h *Handler) Upload(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BatchHandler.Upload")
	defer span.End()

	if h.maxUploadBytes > 0 {
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.maxUploadBytes)
	}

	req, err := BindRequest[UploadRequest](c)
	if err != nil {
		return err
	}

	comma, err := parseDelimiter(req.Delimiter)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	file, err := header.Open()
	if err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}
	defer file.Close()

	result, err := h.engine.IngestBatch(ctx, engine.IngestRequest{
		BatchID:       req.BatchID,
		Filename:      header.Filename,
		Reader:        file,
		Sheet:         req.Sheet,
		Comma:         comma,
		NumbersAsText: req.NumbersAsText,
		HeaderMode:    ingest.HeaderMode(req.Header),
		ColumnNames:   parseColumns(req.Columns),
		EmailColumn:   req.EmailColumn,
		PhoneColumn:   req.PhoneColumn,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) || r == '"' || r == '\n' || r == '\r' {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid delimiter %q", s)
	}
	return r, nil
}

func parseColumns(s string) map[int]string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	names := map[int]string{}
	for i, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names[i] = name
		}
	}
	return names
}

// List handles GET /batches
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BatchHandler.List")
	defer span.End()

	filter, err := BindRequest[models.BatchFilter](c)
	if err != nil {
		return err
	}

	page, err := h.engine.ListBatches(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, page)
}

// Get handles GET /batches/:batch_id
func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BatchHandler.Get")
	defer span.End()

	b, err := h.engine.GetBatch(ctx, c.Param("batch_id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, b)
}

// Delete handles DELETE /batches/:batch_id
func (h *Handler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BatchHandler.Delete")
	defer span.End()

	if err := h.engine.DeleteBatch(ctx, c.Param("batch_id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Preview handles GET /batches/:batch_id/records
func (h *Handler) Preview(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BatchHandler.Preview")
	defer span.End()

	req, err := BindRequest[PageRequest](c)
	if err != nil {
		return err
	}

	page, err := h.engine.Preview(ctx, c.Param("batch_id"), req.Page, req.PageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, page)
}

type SearchRequest struct {
	Value string `query:"value" validate:"required"`
}

// Search handles GET /batches/:batch_id/records/search
func (h *Handler) Search(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BatchHandler.Search")
	defer span.End()

	req, err := BindRequest[SearchRequest](c)
	if err != nil {
		return err
	}

	records, err := h.engine.SearchByIdentifier(ctx, c.Param("batch_id"), req.Value)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, records)
}
