package routes

import (
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/mbolis/quick-register/app"
	"github.com/mbolis/quick-register/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	root.
		With(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret)).
		Mount("/admin", servePrivateFiles("/admin"))
	root.Mount("/files", http.StripPrefix("/files", http.FileServer(http.Dir(app.FilesDir))))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// registration form: read the schema, submit a registration
	api.Get(`/meetings/{id:^\d+$}/registration`, PublicGetRegistrationForm(app))
	api.Post(`/meetings/{id:^\d+$}/registrations`, PublicRegister(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// CRUD meeting
		r.Post("/meetings", CreateMeeting(app))
		r.Get("/meetings", ListMeetings(app))
		r.Get(`/meetings/{id:^\d+$}`, GetMeetingById(app))
		r.Put(`/meetings/{id:^\d+$}`, UpdateMeeting(app))
		r.Delete(`/meetings/{id:^\d+$}`, DeleteMeeting(app))
		r.Post(`/meetings/{id:^\d+$}/clone`, CloneMeeting(app))

		// CRUD custom fields
		r.Get(`/meetings/{id:^\d+$}/fields`, ListFields(app))
		r.Post(`/meetings/{id:^\d+$}/fields`, CreateField(app))
		r.Put(`/meetings/{id:^\d+$}/fields/{fieldId:^\d+$}`, UpdateField(app))
		r.Delete(`/meetings/{id:^\d+$}/fields/{fieldId:^\d+$}`, DeleteField(app))

		// CRUD categories
		r.Get(`/meetings/{id:^\d+$}/categories`, ListCategories(app))
		r.Post(`/meetings/{id:^\d+$}/categories`, CreateCategory(app))
		r.Put(`/meetings/{id:^\d+$}/categories/{categoryId:^\d+$}`, UpdateCategory(app))
		r.Delete(`/meetings/{id:^\d+$}/categories/{categoryId:^\d+$}`, DeleteCategory(app))

		// CRUD rules
		r.Get(`/meetings/{id:^\d+$}/rules`, ListRules(app))
		r.Post(`/meetings/{id:^\d+$}/rules`, CreateRule(app))
		r.Put(`/meetings/{id:^\d+$}/rules/{ruleId:^\d+$}`, UpdateRule(app))
		r.Delete(`/meetings/{id:^\d+$}/rules/{ruleId:^\d+$}`, DeleteRule(app))

		// participants
		r.Get(`/meetings/{id:^\d+$}/participants`, ListParticipants(app))
		r.Get(`/meetings/{id:^\d+$}/participants/{participantId:^\d+$}`, GetParticipantById(app))
		r.Put(`/meetings/{id:^\d+$}/participants/{participantId:^\d+$}`, UpdateParticipant(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}

func servePrivateFiles(path string) http.Handler {
	return http.StripPrefix(path, http.FileServer(http.Dir("private")))
}
