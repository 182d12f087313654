package authgate

import (
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultSessionCookie is the cookie carrying the opaque session identifier.
const DefaultSessionCookie = "authgate.sid"

// HTTPController exposes the gateway's minimal request/response contract
// over fiber. Routing beyond these handlers belongs to the host application.
type HTTPController struct {
	Resolver   *Resolver
	Engine     *RegistrationEngine
	Lifecycle  *Lifecycle
	Issuer     *Issuer
	Store      SessionStore
	Config     Config
	Logger     Logger
	CookieName string
}

type HTTPControllerOption func(*HTTPController)

// NewHTTPController builds a controller over the gateway components.
func NewHTTPController(resolver *Resolver, engine *RegistrationEngine, lifecycle *Lifecycle, issuer *Issuer, store SessionStore, config Config, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Resolver:   resolver,
		Engine:     engine,
		Lifecycle:  lifecycle,
		Issuer:     issuer,
		Store:      store,
		Config:     config,
		Logger:     defLogger{},
		CookieName: DefaultSessionCookie,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

func WithCookieName(name string) HTTPControllerOption {
	return func(c *HTTPController) {
		c.CookieName = name
	}
}

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) {
		c.Logger = logger
	}
}

// RegisterRoutes mounts the gateway contract on the app.
func (h *HTTPController) RegisterRoutes(app *fiber.App) {
	app.Post("/register", h.Register)
	app.Post("/login", h.Login)
	app.Post("/auth/federated", h.FederatedSignIn)
	app.Post("/reset-password", h.ResetPassword)
	app.Get("/logout", h.Logout)

	user := app.Group("/user", h.Auth)
	user.Post("/change-username", h.ChangeUsername)
	user.Post("/change-password", h.ChangePassword)
}

// Auth is the token-auth middleware: x-api-user and x-api-key headers plus
// an optional _v query parameter carrying the client's cached user version.
// On success the user and staleness hint are bound to the request locals,
// and any existing session cookie is advisorily mapped to the user.
func (h *HTTPController) Auth(c *fiber.Ctx) error {
	decision, err := h.Resolver.WithToken(
		c.UserContext(),
		c.Get("x-api-user"),
		c.Get("x-api-key"),
		c.Query("_v"),
	)
	if err != nil {
		return h.denialResponse(c, err)
	}

	if sid := c.Cookies(h.CookieName); sid != "" {
		// Set-and-forget; token auth stays stateless per request.
		if err := h.Store.Save(c.UserContext(), sid, decision.User.ID.String(), h.Config.GetSessionTTL()); err != nil {
			h.Logger.Warn("advisory session bind failed: %v", err)
		}
	}

	c.Locals("user", decision.User)
	c.Locals("wasModified", decision.WasModified)
	return c.Next()
}

// AuthWithSession authenticates via the session cookie.
func (h *HTTPController) AuthWithSession(c *fiber.Ctx) error {
	decision, err := h.Resolver.WithSession(c.UserContext(), c.Cookies(h.CookieName))
	if err != nil {
		return h.denialResponse(c, err)
	}

	c.Locals("user", decision.User)
	return c.Next()
}

// AuthWithURL authenticates with credentials in query parameters, for
// redirect callbacks and webhooks where headers are impractical.
func (h *HTTPController) AuthWithURL(c *fiber.Ctx) error {
	decision, err := h.Resolver.WithURLCredentials(c.UserContext(), c.Query("_id"), c.Query("apiToken"))
	if err != nil {
		return h.denialResponse(c, err)
	}

	c.Locals("user", decision.User)
	return c.Next()
}

// Register handles local registration and returns the persisted user,
// including its newly minted API token.
func (h *HTTPController) Register(c *fiber.Ctx) error {
	var msg RegisterMessage
	if err := c.BodyParser(&msg); err != nil {
		return h.denialResponse(c, ErrMissingCredential)
	}

	user, err := h.Engine.RegisterLocal(c.UserContext(), msg)
	if err != nil {
		return h.denialResponse(c, err)
	}

	return c.JSON(user)
}

type loginPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles local password auth and responds with the user id and API
// token. A session is minted and set as a cookie; verification fully
// completes before either artifact is issued.
func (h *HTTPController) Login(c *fiber.Ctx) error {
	var payload loginPayload
	if err := c.BodyParser(&payload); err != nil {
		return h.denialResponse(c, ErrMissingCredential)
	}

	identifier := payload.Username
	if identifier == "" {
		identifier = payload.Email
	}

	decision, err := h.Resolver.WithLocalCredentials(c.UserContext(), identifier, payload.Password)
	if err != nil {
		return h.denialResponse(c, err)
	}

	sessionID, err := h.Issuer.MintSession(c.UserContext(), decision.User.ID.String())
	if err != nil {
		return h.denialResponse(c, err)
	}
	h.setSessionCookie(c, sessionID)

	return c.JSON(fiber.Map{
		"id":    decision.User.ID.String(),
		"token": decision.User.APIToken,
	})
}

// FederatedSignIn accepts a provider-verified external identity (see
// provider/oidc for the verification adapter) and logs in or creates the
// bound account.
func (h *HTTPController) FederatedSignIn(c *fiber.Ctx) error {
	var identity ExternalIdentity
	if err := c.BodyParser(&identity); err != nil {
		return h.denialResponse(c, ErrMissingCredential)
	}

	result, err := h.Engine.FederatedSignIn(c.UserContext(), identity)
	if err != nil {
		return h.denialResponse(c, err)
	}
	h.setSessionCookie(c, result.SessionID)

	return c.JSON(fiber.Map{
		"id":       result.User.ID.String(),
		"apiToken": result.User.APIToken,
	})
}

type resetPasswordPayload struct {
	Email string `json:"email"`
}

// ResetPassword generates and mails a new password. Failures respond 500
// with an error body, successes with a plain-text confirmation.
func (h *HTTPController) ResetPassword(c *fiber.Ctx) error {
	var payload resetPasswordPayload
	if err := c.BodyParser(&payload); err != nil {
		return h.denialResponse(c, ErrMissingCredential)
	}

	if err := h.Lifecycle.ResetPassword(c.UserContext(), payload.Email); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"err":  richErr.Message,
				"code": richErr.TextCode,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"err": "password reset failed"})
	}

	return c.SendString("new password sent to " + payload.Email)
}

type changeUsernamePayload struct {
	Password    string `json:"password"`
	NewUsername string `json:"newUsername"`
}

// ChangeUsername runs behind Auth.
func (h *HTTPController) ChangeUsername(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(*User)
	if !ok {
		return h.denialResponse(c, ErrNoSession)
	}

	var payload changeUsernamePayload
	if err := c.BodyParser(&payload); err != nil {
		return h.denialResponse(c, ErrMissingCredential)
	}

	if err := h.Lifecycle.ChangeUsername(c.UserContext(), user, payload.Password, payload.NewUsername); err != nil {
		return h.denialResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

type changePasswordPayload struct {
	OldPassword        string `json:"oldPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// ChangePassword runs behind Auth.
func (h *HTTPController) ChangePassword(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(*User)
	if !ok {
		return h.denialResponse(c, ErrNoSession)
	}

	var payload changePasswordPayload
	if err := c.BodyParser(&payload); err != nil {
		return h.denialResponse(c, ErrMissingCredential)
	}

	if err := h.Lifecycle.ChangePassword(c.UserContext(), user, payload.OldPassword, payload.NewPassword, payload.ConfirmNewPassword); err != nil {
		return h.denialResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

// Logout destroys the session mapping and clears the cookie.
func (h *HTTPController) Logout(c *fiber.Ctx) error {
	if sid := c.Cookies(h.CookieName); sid != "" {
		if err := h.Issuer.Invalidate(c.UserContext(), sid); err != nil {
			h.Logger.Warn("session invalidation failed: %v", err)
		}
	}

	c.ClearCookie(h.CookieName)
	return c.Redirect("/")
}

func (h *HTTPController) setSessionCookie(c *fiber.Ctx, sessionID string) {
	c.Cookie(&fiber.Cookie{
		Name:     h.CookieName,
		Value:    sessionID,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// denialResponse translates a typed denial into the wire contract: a stable
// machine-checkable code plus a human string. Internals never leak.
func (h *HTTPController) denialResponse(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		h.Logger.Error("unclassified error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"err": "internal server error"})
	}

	if richErr.TextCode == TextCodeUpstreamFailure {
		h.Logger.Error("upstream failure: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"err":  "internal server error",
			"code": richErr.TextCode,
		})
	}

	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"err":  richErr.Message,
		"code": richErr.TextCode,
	})
}
