package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"devboard/domain"
)

type syncUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// syncUser upserts the caller's profile on login.
func syncUser(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req syncUserRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		u := domain.User{
			ID:        userID,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			LastLogin: time.Now(),
		}
		if err := store.UpsertUser(ctx, u); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to sync user")
		}
		saved, err := store.GetUser(ctx, userID)
		if err != nil || saved == nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to sync user")
		}
		return c.JSON(http.StatusOK, map[string]*domain.User{"user": saved})
	}
}

func getProfile(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		u, err := store.GetUser(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to get profile")
		}
		if u == nil {
			return c.String(http.StatusNotFound, "user not found")
		}
		return c.JSON(http.StatusOK, map[string]*domain.User{"user": u})
	}
}

func updateProfile(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var upd domain.ProfileUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := store.UpdateProfile(ctx, userID, upd); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update profile")
		}
		u, err := store.GetUser(ctx, userID)
		if err != nil || u == nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update profile")
		}
		return c.JSON(http.StatusOK, map[string]*domain.User{"user": u})
	}
}

type connectGithubRequest struct {
	GithubToken string `json:"githubToken"`
}

func connectGithub(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req connectGithubRequest
		if err := decodeBody(c, &req); err != nil || req.GithubToken == "" {
			return c.String(http.StatusBadRequest, "githubToken is required")
		}
		if err := store.SetGithubToken(ctx, userID, req.GithubToken); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to connect GitHub account")
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "GitHub account connected successfully"})
	}
}

func disconnectGithub(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := store.SetGithubToken(ctx, userID, ""); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to disconnect GitHub account")
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "GitHub account disconnected successfully"})
	}
}
