package sites

import (
	"context"
	"strings"
	"time"

	"consulta-vehicular-go/internal/browser"
	"consulta-vehicular-go/internal/domain/names"
	"consulta-vehicular-go/internal/domain/result"
	"consulta-vehicular-go/internal/platform/errors"
)

// Driver for the wanted-persons reward registry, searched by full name.
const recompensasURL = "https://recompensas.pe/requisitoriados"

const (
	selRecompensasName   = "input[name='nombreCompleto'], input[placeholder*='Nombre']"
	selRecompensasSubmit = "button[type='submit']"
)

func (r *Registry) recompensasByOwner(ctx context.Context, owner names.OwnerRecord) (result.ServiceResult, error) {
	fullName := strings.TrimSpace(strings.Join([]string{owner.Surname1, owner.Surname2, owner.GivenNames}, " "))
	if strings.TrimSpace(strings.ReplaceAll(fullName, " ", "")) == "" {
		return result.ServiceResult{}, errors.New(errors.KindValidation, "recompensas.lookup", "owner name required")
	}

	return r.withContext(ctx, func(ctx context.Context, bc *browser.Context) (result.ServiceResult, error) {
		if err := bc.Navigate(ctx, recompensasURL, 20*time.Second); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(time.Second)

		if err := bc.Fill(ctx, selRecompensasName, fullName); err != nil {
			return result.ServiceResult{}, err
		}
		if err := r.recompensasClickSearch(ctx, bc); err != nil {
			return result.ServiceResult{}, err
		}
		time.Sleep(3 * time.Second)

		cards := r.recompensasParseCards(ctx, bc)
		return result.Success(map[string]any{
			"query":      fullName,
			"total":      len(cards),
			"no_results": len(cards) == 0,
			"results":    cards,
			"raw_text":   bc.Text(ctx, "body"),
		}), nil
	})
}

// recompensasClickSearch waits out the button's disabled state before
// firing it.
func (r *Registry) recompensasClickSearch(ctx context.Context, bc *browser.Context) error {
	deadline := time.Now().Add(6 * time.Second)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		res, err := bc.Eval(ctx, `() => {
			for (const btn of document.querySelectorAll("button[type='submit'], button")) {
				const t = (btn.textContent || '').toUpperCase();
				if (!t.includes('BUSCAR')) continue;
				if (btn.disabled) return 'disabled';
				btn.click();
				return 'clicked';
			}
			return 'missing';
		}`)
		if err == nil {
			switch res.Value.Str() {
			case "clicked":
				return nil
			case "missing":
				return bc.Click(ctx, selRecompensasSubmit)
			}
		}
		time.Sleep(300 * time.Millisecond)
	}
	return errors.New(errors.KindUpstream, "recompensas.lookup", "search button stayed disabled")
}

// recompensasParseCards flattens the result cards into name, reward and
// photo triples.
func (r *Registry) recompensasParseCards(ctx context.Context, bc *browser.Context) []map[string]string {
	res, err := bc.Eval(ctx, `() => Array.from(document.querySelectorAll('div.card.h-100')).map(card => ({
		nombre: (card.querySelector('.card-title')?.innerText || '').trim(),
		recompensa: (card.querySelector('.card-text')?.innerText || '').trim(),
		imagen: card.querySelector('img')?.getAttribute('src') || ''
	}))`)
	if err != nil {
		return nil
	}

	var out []map[string]string
	for _, v := range res.Value.Arr() {
		card := map[string]string{
			"nombre":     v.Get("nombre").Str(),
			"recompensa": v.Get("recompensa").Str(),
			"imagen":     v.Get("imagen").Str(),
		}
		if card["nombre"] != "" || card["recompensa"] != "" || card["imagen"] != "" {
			out = append(out, card)
		}
	}
	return out
}
