package api

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// githubClientFor authenticates the caller and builds an upstream client
// from their stored credential. A missing credential is a client error, not
// a server fault.
func githubClientFor(c echo.Context, store Store, auth Authenticator, factory GithubClientFactory) (GithubClient, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return nil, c.String(http.StatusUnauthorized, err.Error())
	}
	u, err := store.GetUser(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Error(err)
		return nil, c.String(http.StatusInternalServerError, "failed to load user")
	}
	if u == nil || u.GithubToken == "" {
		return nil, c.String(http.StatusBadRequest, "GitHub account not connected")
	}
	return factory(u.GithubToken), nil
}

func proxyGithub(store Store, auth Authenticator, factory GithubClientFactory, key string, path func(echo.Context) string, query url.Values) echo.HandlerFunc {
	return func(c echo.Context) error {
		cli, errResp := githubClientFor(c, store, auth, factory)
		if cli == nil {
			return errResp
		}
		raw, err := cli.Raw(c.Request().Context(), path(c), query)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch "+key)
		}
		return c.JSON(http.StatusOK, map[string]any{key: raw})
	}
}

func getRepos(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return proxyGithub(store, auth, factory, "repos",
		func(echo.Context) string { return "/user/repos" },
		url.Values{"sort": {"updated"}, "per_page": {"50"}})
}

func getRepoDetails(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return proxyGithub(store, auth, factory, "repo",
		func(c echo.Context) string { return "/repos/" + c.Param("owner") + "/" + c.Param("repo") },
		nil)
}

func getCommits(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return proxyGithub(store, auth, factory, "commits",
		func(c echo.Context) string { return "/repos/" + c.Param("owner") + "/" + c.Param("repo") + "/commits" },
		url.Values{"per_page": {"20"}})
}

func getPullRequests(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return proxyGithub(store, auth, factory, "pulls",
		func(c echo.Context) string { return "/repos/" + c.Param("owner") + "/" + c.Param("repo") + "/pulls" },
		url.Values{"state": {"all"}, "per_page": {"20"}})
}

func getIssues(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return proxyGithub(store, auth, factory, "issues",
		func(c echo.Context) string { return "/repos/" + c.Param("owner") + "/" + c.Param("repo") + "/issues" },
		url.Values{"state": {"all"}, "per_page": {"20"}})
}

func getActivity(store Store, auth Authenticator, factory GithubClientFactory) echo.HandlerFunc {
	return proxyGithub(store, auth, factory, "activity",
		func(echo.Context) string { return "/user/events" },
		url.Values{"per_page": {"30"}})
}
