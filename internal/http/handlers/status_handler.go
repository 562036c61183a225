// Job status endpoint.
//
//   - GET /status/{job_id}
//
// Status is derived server-side by scanning the artifact store; this
// handler only extracts the path parameter and renders the result. An
// unknown job id is indistinguishable from one still processing, so the
// endpoint never returns 404 for well-formed ids.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/http/middleware"
)

// Status godoc
// @ID          jobStatus
// @Summary     Poll job status
// @Description Returns the derived status of a job: processing until an artifact appears, then completed (with a time-limited download URL) or failed (with a bounded error message).
// @Tags        Jobs
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       job_id         path    string  true  "Job ID"
//
// @Success     200  {object}  domain.JobStatus
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /status/{job_id} [get]
func (h *Handlers) Status(c *gin.Context) {
	st, err := h.statusSvc.Status(c.Request.Context(), middleware.UserIDFrom(c), c.Param("job_id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}
