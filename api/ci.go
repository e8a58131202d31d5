package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

func getWorkflowRuns(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return func(c echo.Context) error {
		cli, errResp := githubClientFor(c, store, auth, factory)
		if cli == nil {
			return errResp
		}
		path := "/repos/" + c.Param("owner") + "/" + c.Param("repo") + "/actions/runs"
		raw, err := cli.Raw(c.Request().Context(), path, url.Values{"per_page": {"20"}})
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch workflow runs")
		}
		var resp struct {
			WorkflowRuns json.RawMessage `json:"workflow_runs"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch workflow runs")
		}
		return c.JSON(http.StatusOK, map[string]any{"runs": resp.WorkflowRuns})
	}
}

func getWorkflowRun(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return proxyGithub(store, auth, factory, "run",
		func(c echo.Context) string {
			return "/repos/" + c.Param("owner") + "/" + c.Param("repo") + "/actions/runs/" + c.Param("runId")
		},
		nil)
}

// getWorkflowLogs streams a run's log archive back to the client. GitHub
// serves it as a zip behind a redirect, so the body is passed through as-is.
func getWorkflowLogs(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return func(c echo.Context) error {
		cli, errResp := githubClientFor(c, store, auth, factory)
		if cli == nil {
			return errResp
		}
		path := "/repos/" + c.Param("owner") + "/" + c.Param("repo") + "/actions/runs/" + c.Param("runId") + "/logs"
		data, contentType, err := cli.Download(c.Request().Context(), path)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch workflow logs")
		}
		if contentType == "" {
			contentType = "application/zip"
		}
		return c.Blob(http.StatusOK, contentType, data)
	}
}

type dispatchRequest struct {
	Ref    string         `json:"ref"`
	Inputs map[string]any `json:"inputs"`
}

func triggerWorkflow(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return func(c echo.Context) error {
		cli, errResp := githubClientFor(c, store, auth, factory)
		if cli == nil {
			return errResp
		}
		req := dispatchRequest{Ref: "main", Inputs: map[string]any{}}
		if c.Request().ContentLength != 0 {
			if err := decodeBody(c, &req); err != nil {
				return c.String(http.StatusBadRequest, "invalid body")
			}
			if req.Ref == "" {
				req.Ref = "main"
			}
		}
		path := "/repos/" + c.Param("owner") + "/" + c.Param("repo") + "/actions/workflows/" + c.Param("workflowId") + "/dispatches"
		if err := cli.Dispatch(c.Request().Context(), path, req); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to trigger workflow")
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "Workflow triggered successfully"})
	}
}
