package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/sefimap/manager/internal/auth"
	"github.com/sefimap/manager/internal/handlers"
	"github.com/sefimap/manager/internal/models"
)

type Options struct {
	APIKey    string
	JWTSecret []byte
	// PhotoFs is served under /photos/ when photos are stored locally.
	PhotoFs afero.Fs
	// SessionDB overrides the connection used to resolve admin sessions.
	SessionDB *gorm.DB
}

func Router(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handlers.Health)
	r.Get("/qr/{code}.png", handlers.QR(app))
	if opts.PhotoFs != nil {
		r.Handle("/photos/*", http.StripPrefix("/photos", http.FileServer(afero.NewHttpFs(opts.PhotoFs))))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.RequireAPIKey(opts.APIKey))

		// Public registration page
		api.Post("/inscriptions", handlers.PublicRegister(app))
		api.Get("/inscriptions/statut", handlers.StatutLookup(app))
		api.Get("/chefs", handlers.ListChefs(app))
		api.Get("/dortoirs", handlers.ListDortoirs(app))

		api.Route("/admin", func(ar chi.Router) {
			ar.Use(auth.RequireSession(opts.JWTSecret, opts.SessionDB))

			ar.Group(func(ag chi.Router) {
				ag.Use(auth.RequireRole(models.RoleAdmin, models.RolePresident, models.RoleFinance))
				ag.Get("/stats", handlers.AdminStats(app))
				ag.Get("/stats/niveaux", handlers.AdminNiveauxStats(app))
			})

			// Desk work shared with section presidents
			ar.Group(func(ag chi.Router) {
				ag.Use(auth.RequireRole(models.RoleAdmin, models.RolePresident))
				ag.Get("/inscriptions", handlers.ListInscriptions(app))
				ag.Get("/inscriptions.csv", handlers.InscriptionsCSV(app))
				ag.Post("/inscriptions", handlers.AdminRegister(app))
				ag.Get("/inscriptions/{id}", handlers.GetInscription(app))
				ag.Post("/inscriptions/{id}/paiements", handlers.AddPaiement(app))
				ag.Get("/inscriptions/{id}/badge.pdf", handlers.BadgePDF(app))
				ag.Get("/badges.pdf", handlers.BadgesPDF(app))
			})

			ar.Group(func(ag chi.Router) {
				ag.Use(auth.RequireRole(models.RoleAdmin))

				// Registration review
				ag.Patch("/inscriptions/{id}", handlers.PatchInscription(app))
				ag.Delete("/inscriptions/{id}", handlers.DeleteInscription(app))
				ag.Post("/inscriptions/{id}/valider", handlers.ValiderInscription(app))
				ag.Post("/inscriptions/{id}/rejeter", handlers.RejeterInscription(app))
				ag.Post("/inscriptions/{id}/dortoir", handlers.AssignDortoir(app))

				// Grades
				ag.Get("/classes/{id}/roster", handlers.ClasseRoster(app))
				ag.Get("/classes/{id}/bulletins.pdf", handlers.ClasseBulletinsPDF(app))
				ag.Put("/notes", handlers.PutNote(app))
				ag.Delete("/notes/{id}", handlers.DeleteNote(app))
				ag.Get("/notes/{id}/bulletin.pdf", handlers.BulletinPDF(app))

				// Reference data
				ag.Post("/dortoirs", handlers.CreateDortoir(app))
				ag.Patch("/dortoirs/{id}", handlers.UpdateDortoir(app))
				ag.Delete("/dortoirs/{id}", handlers.DeleteDortoir(app))
				ag.Get("/classes", handlers.ListClasses(app))
				ag.Post("/classes", handlers.CreateClasse(app))
				ag.Patch("/classes/{id}", handlers.UpdateClasse(app))
				ag.Delete("/classes/{id}", handlers.DeleteClasse(app))
				ag.Post("/chefs", handlers.CreateChef(app))
				ag.Patch("/chefs/{id}", handlers.UpdateChef(app))
				ag.Delete("/chefs/{id}", handlers.DeleteChef(app))
				ag.Get("/capacites", handlers.ListCapacites(app))
				ag.Put("/capacites", handlers.PutCapacite(app))

				// Cache
				ag.Post("/refresh", handlers.RefreshCache(app))
				ag.Get("/sync/conflicts", handlers.SyncConflicts(app))
				ag.Post("/sync/conflicts/{coll}/{id}/ack", handlers.AckConflict(app))
			})
		})

		api.Route("/finance", func(fr chi.Router) {
			fr.Use(auth.RequireSession(opts.JWTSecret, opts.SessionDB))
			fr.Use(auth.RequireRole(models.RoleAdmin, models.RoleFinance))
			fr.Get("/resume", handlers.ResumeFinancier(app))
			fr.Get("/paiements", handlers.ListPaiements(app))
			fr.Post("/inscriptions/{id}/valider", handlers.ValiderFinance(app))
			fr.Post("/inscriptions/{id}/refuser", handlers.RefuserFinance(app))
			fr.Post("/paiements/{id}/annuler", handlers.AnnulerPaiement(app))
		})
	})

	return r
}
