package i18n

import (
	"fmt"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"
)

// messages holds the user-facing catalog per locale. Keys follow
// "<domain>.<slug>" and are referenced from apperr message keys.
var messages = map[string]map[string]string{
	"en": {
		"errors.internal":               "An internal error occurred",
		"errors.unauthorized":           "Authentication required",
		"errors.invalid_request":        "Invalid request payload",
		"simulation.write_blocked":      "Write operations are blocked while in simulation mode",
		"simulation.role_forbidden":     "Your role is not allowed to start a simulation",
		"simulation.already_simulating": "You are already simulating a student; end the current session first",
		"simulation.already_ended":      "This simulation session has already ended",
		"simulation.tenant_required":    "A school must be selected to start a simulation",
		"simulation.tenant_not_found":   "The selected school was not found",
		"simulation.student_not_found":  "The selected student was not found",
		"simulation.student_inactive":   "The selected student account is inactive",
		"simulation.session_not_found":  "No simulation session was found",
		"simulation.ended":              "Simulation ended",
	},
	"fr": {
		"errors.internal":               "Une erreur interne est survenue",
		"errors.unauthorized":           "Authentification requise",
		"errors.invalid_request":        "Contenu de la requête invalide",
		"simulation.write_blocked":      "Les opérations d'écriture sont bloquées en mode simulation",
		"simulation.role_forbidden":     "Votre rôle ne permet pas de démarrer une simulation",
		"simulation.already_simulating": "Vous simulez déjà un étudiant ; terminez d'abord la session en cours",
		"simulation.already_ended":      "Cette session de simulation est déjà terminée",
		"simulation.tenant_required":    "Une école doit être sélectionnée pour démarrer une simulation",
		"simulation.tenant_not_found":   "L'école sélectionnée est introuvable",
		"simulation.student_not_found":  "L'étudiant sélectionné est introuvable",
		"simulation.student_inactive":   "Le compte de l'étudiant sélectionné est inactif",
		"simulation.session_not_found":  "Aucune session de simulation n'a été trouvée",
		"simulation.ended":              "Simulation terminée",
	},
}

// NewTranslator builds the universal translator with the en and fr catalogs
// registered. English is the fallback locale.
func NewTranslator() (*ut.UniversalTranslator, error) {
	enLocale := en.New()
	utrans := ut.New(enLocale, enLocale, fr.New())

	for locale, catalog := range messages {
		trans, found := utrans.GetTranslator(locale)
		if !found {
			return nil, fmt.Errorf("i18n: translator %q not registered", locale)
		}
		for key, text := range catalog {
			if err := trans.Add(key, text, false); err != nil {
				return nil, fmt.Errorf("i18n: add %s/%s: %w", locale, key, err)
			}
		}
	}

	return utrans, nil
}

// Locale negotiates a translator from an Accept-Language header value,
// falling back to the universal translator's default (en).
func Locale(utrans *ut.UniversalTranslator, acceptLanguage string) ut.Translator {
	trans, _ := utrans.FindTranslator(parseAcceptLanguage(acceptLanguage)...)
	return trans
}

// T translates key with params, falling back to the key itself when missing
// so an untranslated message never turns into an empty response.
func T(trans ut.Translator, key string, params ...string) string {
	msg, err := trans.T(key, params...)
	if err != nil {
		return key
	}
	return msg
}

// parseAcceptLanguage extracts the language subtags in preference order.
// Quality values are ignored; header order is taken as the preference order.
func parseAcceptLanguage(header string) []string {
	var langs []string
	for _, part := range strings.Split(header, ",") {
		lang := strings.TrimSpace(part)
		if i := strings.IndexByte(lang, ';'); i >= 0 {
			lang = lang[:i]
		}
		if i := strings.IndexByte(lang, '-'); i >= 0 {
			lang = lang[:i]
		}
		if lang != "" {
			langs = append(langs, lang)
		}
	}
	return langs
}
