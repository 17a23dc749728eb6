package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/sefimap/manager/internal/cache"
	"github.com/sefimap/manager/internal/models"
	"github.com/sefimap/manager/internal/services"
)

func (cli *commandLine) title(s string) {
	color.New(color.FgYellow).Fprintln(cli.out, "\n"+s)
}

func (cli *commandLine) table(header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(cli.out)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	return t
}

// load fills a one-shot cache so the report uses the same aggregates as the
// dashboard.
func (cli *commandLine) load() (*cache.Provider, error) {
	p := cache.New(cache.GormSource{DB: cli.db}, cache.DefaultPollInterval, nil)
	p.Refresh(context.Background())
	if msg := p.Error(); msg != "" {
		return nil, errors.New(msg)
	}
	return p, nil
}

func fcfa(v int64) string { return strconv.FormatInt(v, 10) + " FCFA" }

func (cli *commandLine) stats() error {
	p, err := cli.load()
	if err != nil {
		return err
	}
	s := p.Stats()

	cli.title("Inscriptions")
	t := cli.table([]string{"Indicateur", "Valeur"})
	t.Append([]string{"Total", strconv.Itoa(s.TotalInscriptions)})
	t.Append([]string{"Validées", strconv.Itoa(s.InscriptionsValidees)})
	t.Append([]string{"En attente", strconv.Itoa(s.InscriptionsEnAttente)})
	t.Append([]string{"Rejetées", strconv.Itoa(s.InscriptionsRejetees)})
	t.Append([]string{"Hommes / Femmes", fmt.Sprintf("%d / %d", s.Hommes, s.Femmes)})
	t.Append([]string{"En ligne / Présentiel", fmt.Sprintf("%d / %d", s.EnLigne, s.Presentielle)})
	t.Render()

	cli.title("Paiements")
	t = cli.table([]string{"Indicateur", "Valeur"})
	t.Append([]string{"Encaissé", fcfa(s.TotalPaye)})
	t.Append([]string{"Restant dû", fcfa(s.TotalRestant)})
	t.Append([]string{"Versements", strconv.Itoa(s.TotalPaiements)})
	t.Render()

	sci := p.StatsScientifique()
	cli.title("Examens")
	t = cli.table([]string{"Indicateur", "Valeur"})
	t.Append([]string{"Participants notés", strconv.Itoa(sci.Participants)})
	t.Append([]string{"Notes saisies", strconv.Itoa(sci.NotesSaisies)})
	moy := "-"
	if sci.MoyenneGenerale != nil {
		moy = strconv.FormatFloat(*sci.MoyenneGenerale, 'f', 2, 64)
	}
	t.Append([]string{"Moyenne générale", moy})
	t.Render()
	return nil
}

func (cli *commandLine) dortoirs() error {
	var rows []models.DortoirStat
	if err := cli.db.Table("vue_statistiques_dortoirs").Order("nom").Find(&rows).Error; err != nil {
		return errors.Wrap(err, "load dortoirs")
	}
	cli.title("Dortoirs")
	t := cli.table([]string{"Dortoir", "Capacité", "Occupation", "Places libres", "Remplissage"})
	full := color.New(color.FgRed).SprintFunc()
	for _, d := range rows {
		libres := strconv.Itoa(d.PlacesLibres)
		if d.PlacesLibres <= 0 {
			libres = full("complet")
		}
		t.Append([]string{
			d.Nom, strconv.Itoa(d.Capacite), strconv.Itoa(d.Occupation), libres,
			fmt.Sprintf("%.1f %%", d.TauxRemplissage),
		})
	}
	t.Render()
	return nil
}

func (cli *commandLine) niveaux() error {
	rows, err := services.StatistiquesNiveaux(cli.db)
	if err != nil {
		return err
	}
	cli.title("Niveaux de formation")
	t := cli.table([]string{"Niveau", "Participants", "Part"})
	for _, n := range rows {
		t.Append([]string{n.NiveauFormation, strconv.Itoa(n.Total), fmt.Sprintf("%.1f %%", n.Pourcentage)})
	}
	t.Render()
	return nil
}

func (cli *commandLine) finance(pendingOnly bool) error {
	p, err := cli.load()
	if err != nil {
		return err
	}
	r := services.BuildResumeFinancier(p.Inscriptions())

	cli.title("Situation financière")
	t := cli.table([]string{"Code", "Nom", "Payé", "Restant", "Statut"})
	add := func(list []models.Inscription) {
		for _, i := range list {
			t.Append([]string{i.Code, i.NomComplet(), fcfa(i.MontantPaye), fcfa(services.Restant(i)), i.StatutPaiement})
		}
	}
	add(r.EnAttente)
	if !pendingOnly {
		add(r.Regles)
	}
	t.SetFooter([]string{"", "Total", fcfa(r.TotalCollecte), fcfa(r.TotalRestant), ""})
	t.Render()
	return nil
}
