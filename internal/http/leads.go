package http

import (
	"encoding/csv"
	"io"
	"net/http"
	"strings"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/repository"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// importChunkSize bounds one UpsertBatch statement
const importChunkSize = 500

// importLeadsHandler ingests a CSV upload into a named list. The header
// row names the columns; the well-known ones map onto lead fields and
// everything else lands in custom_fields for template substitution.
// Re-importing upserts by email and never resets a responded flag.
func importLeadsHandler(leads repository.LeadsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		listName := strings.TrimSpace(c.FormValue("list_name"))
		if listName == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing list_name"})
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing file"})
		}
		f, err := fh.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable file"})
		}
		defer f.Close()

		parsed, skipped, err := parseLeadCSV(f, listName)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if len(parsed) == 0 {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{
				"error":   "no importable rows",
				"skipped": skipped,
			})
		}

		ctx := c.Request().Context()
		for start := 0; start < len(parsed); start += importChunkSize {
			end := start + importChunkSize
			if end > len(parsed) {
				end = len(parsed)
			}
			if err := leads.UpsertBatch(ctx, parsed[start:end]); err != nil {
				log.Errorf("import leads failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"list":     listName,
			"imported": len(parsed),
			"skipped":  skipped,
		})
	}
}

// builtinColumns are CSV headers that map onto lead fields rather than
// custom_fields.
var builtinColumns = map[string]bool{
	"email": true, "name": true, "last_name": true,
	"city": true, "brokerage": true, "service": true,
}

func parseLeadCSV(r io.Reader, listName string) ([]model.Lead, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, echo.NewHTTPError(http.StatusBadRequest, "empty csv")
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	emailCol := -1
	for i, h := range header {
		if h == "email" {
			emailCol = i
		}
	}
	if emailCol < 0 {
		return nil, 0, echo.NewHTTPError(http.StatusBadRequest, "csv has no email column")
	}

	var (
		out     []model.Lead
		skipped int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if emailCol >= len(rec) {
			skipped++
			continue
		}
		email := strings.ToLower(strings.TrimSpace(rec[emailCol]))
		if email == "" || !strings.Contains(email, "@") {
			skipped++
			continue
		}

		lead := model.Lead{Email: email, ListName: listName}
		for i, h := range header {
			if i >= len(rec) || i == emailCol {
				continue
			}
			val := strings.TrimSpace(rec[i])
			switch h {
			case "name":
				lead.Name = val
			case "last_name":
				lead.LastName = val
			case "city":
				lead.City = val
			case "brokerage":
				lead.Brokerage = val
			case "service":
				lead.Service = val
			default:
				if h == "" || val == "" {
					continue
				}
				if lead.CustomFields == nil {
					lead.CustomFields = model.CustomFields{}
				}
				lead.CustomFields[h] = val
			}
		}
		out = append(out, lead)
	}
	return out, skipped, nil
}

func listLeadsHandler(leads repository.LeadsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		listName := strings.TrimSpace(c.QueryParam("list"))
		if listName == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing list"})
		}
		rows, err := leads.ListByList(c.Request().Context(), listName)
		if err != nil {
			c.Logger().Errorf("list leads failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"list":    listName,
			"count":   len(rows),
			"results": rows,
		})
	}
}

func listLeadListsHandler(leads repository.LeadsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		lists, err := leads.Lists(c.Request().Context())
		if err != nil {
			c.Logger().Errorf("list lead lists failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(lists),
			"results": lists,
		})
	}
}
