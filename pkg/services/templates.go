package services

import (
	"fmt"
	"strings"

	"github.com/opentriagem/triagem/pkg/llm"
	"github.com/opentriagem/triagem/pkg/models"
)

// Placeholder used whenever a human left a reason blank.
const reasonNotInformed = "não informado"

const processingReplyBody = "Recebido. Encaminhamento em processamento, aguarde a triagem."

// attachmentFilename builds the deterministic name of the cleaned-text
// attachment posted in Room 2.
func attachmentFilename(c *models.Case) string {
	record := "sem-registro"
	if c.AgencyRecordNumber != nil && *c.AgencyRecordNumber != "" {
		record = strings.ToLower(*c.AgencyRecordNumber)
	}
	return fmt.Sprintf("caso-%s-%s-encaminhamento.txt", shortCaseID(c.CaseID), record)
}

func shortCaseID(caseID string) string {
	if len(caseID) > 8 {
		return caseID[:8]
	}
	return caseID
}

func room2RootBody(c *models.Case, prior *models.PriorCaseContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Novo caso de triagem %s\n", shortCaseID(c.CaseID))
	if c.AgencyRecordNumber != nil {
		fmt.Fprintf(&b, "registro: %s\n", *c.AgencyRecordNumber)
	}
	fmt.Fprintf(&b, "solicitante: %s\n", c.OriginSenderUserID)
	if prior != nil && prior.MostRecent != nil {
		fmt.Fprintf(&b, "atencao: %d negativa(s) nos ultimos 7 dias para este registro\n", prior.DenialCount)
		fmt.Fprintf(&b, "ultima negativa em %s (%s): %s\n",
			prior.MostRecent.DeniedAt.In(locationBRT).Format(datetimeLayout),
			prior.MostRecent.Source, prior.MostRecent.Reason)
	}
	fmt.Fprintf(&b, "caso: %s", c.CaseID)
	return b.String()
}

func room2SummaryBody(c *models.Case, suggestion *llm.Suggestion) string {
	var b strings.Builder
	b.WriteString("Resumo do caso\n")
	if c.SummaryText != nil {
		b.WriteString(*c.SummaryText)
		b.WriteString("\n")
	}
	if suggestion != nil {
		fmt.Fprintf(&b, "\nsugestao: %s\nsuporte sugerido: %s\nlaboratorio: %s\necg: %s\n",
			suggestion.Suggestion, suggestion.SupportRecommendation, suggestion.LabsOK, suggestion.ECGOK)
		if suggestion.Justification != "" {
			fmt.Fprintf(&b, "justificativa: %s\n", suggestion.Justification)
		}
	}
	fmt.Fprintf(&b, "caso: %s", c.CaseID)
	return b.String()
}

func room2TemplateBody(c *models.Case) string {
	return fmt.Sprintf("Responda a esta mensagem com o formulario abaixo:\n"+
		"decisao: aceitar|negar\n"+
		"suporte: nenhum|anestesista|anestesista_uti\n"+
		"motivo: <texto livre>\n"+
		"caso: %s", c.CaseID)
}

func room2DecisionAckBody(dec models.DoctorDecision) string {
	decision := "aceito"
	if dec.Decision == models.DecisionDeny {
		decision = "negado"
	}
	reason := strings.TrimSpace(dec.Reason)
	if reason == "" {
		reason = reasonNotInformed
	}
	return fmt.Sprintf("Decisao registrada: %s\nsuporte: %s\nmotivo: %s\ncaso: %s",
		decision, dec.SupportFlag, reason, dec.CaseID)
}

func room2ResultSuccessBody() string {
	return "resultado: sucesso"
}

func room2ResultErrorBody(reason string) string {
	return fmt.Sprintf("resultado: erro (%s)", reason)
}

func room3RequestBody(c *models.Case) string {
	var b strings.Builder
	b.WriteString("Solicitacao de agendamento de endoscopia\n")
	if c.AgencyRecordNumber != nil {
		fmt.Fprintf(&b, "registro: %s\n", *c.AgencyRecordNumber)
	}
	if c.DoctorSupportFlag != nil && *c.DoctorSupportFlag != models.SupportNone {
		fmt.Fprintf(&b, "suporte necessario: %s\n", *c.DoctorSupportFlag)
	}
	b.WriteString("Responda a esta mensagem com:\n" +
		"status: confirmado|negado\n" +
		"data_hora: DD-MM-YYYY HH:MM BRT\n" +
		"local: <sala>\n" +
		"instrucoes: <preparo>\n" +
		"motivo: <apenas se negado>\n")
	fmt.Fprintf(&b, "caso: %s", c.CaseID)
	return b.String()
}

func room3AckBody(c *models.Case) string {
	return fmt.Sprintf("Solicitacao registrada. Confirme o recebimento com 👍.\ncaso: %s", c.CaseID)
}

func room3ReformatBody(c *models.Case, reason string) string {
	return fmt.Sprintf("Nao foi possivel interpretar a resposta (%s). Use exatamente o formato:\n"+
		"status: confirmado|negado\n"+
		"data_hora: DD-MM-YYYY HH:MM BRT\n"+
		"local: <sala>\n"+
		"instrucoes: <preparo>\n"+
		"motivo: <apenas se negado>\n"+
		"caso: %s", reason, c.CaseID)
}

func room1FinalDenialBody(c *models.Case) string {
	reason := reasonNotInformed
	if c.DoctorReason != nil && strings.TrimSpace(*c.DoctorReason) != "" {
		reason = *c.DoctorReason
	}
	return fmt.Sprintf("Triagem concluida: solicitacao NEGADA pela equipe medica.\n"+
		"motivo: %s\n"+
		"Confirme a leitura com 👍 para encerrar o caso.\ncaso: %s", reason, c.CaseID)
}

func room1FinalApptBody(c *models.Case) string {
	var b strings.Builder
	b.WriteString("Triagem concluida: exame AGENDADO.\n")
	if c.AppointmentDatetime != nil {
		fmt.Fprintf(&b, "data/hora: %s BRT\n", c.AppointmentDatetime.In(locationBRT).Format(datetimeLayout))
	}
	if c.AppointmentLocation != nil && *c.AppointmentLocation != "" {
		fmt.Fprintf(&b, "local: %s\n", *c.AppointmentLocation)
	}
	if c.AppointmentInstructions != nil && *c.AppointmentInstructions != "" {
		fmt.Fprintf(&b, "instrucoes: %s\n", *c.AppointmentInstructions)
	}
	fmt.Fprintf(&b, "Confirme a leitura com 👍 para encerrar o caso.\ncaso: %s", c.CaseID)
	return b.String()
}

func room1FinalApptDeniedBody(c *models.Case) string {
	reason := reasonNotInformed
	if c.AppointmentReason != nil && strings.TrimSpace(*c.AppointmentReason) != "" {
		reason = *c.AppointmentReason
	}
	return fmt.Sprintf("Triagem concluida: agendamento NEGADO pela central.\n"+
		"motivo: %s\n"+
		"Confirme a leitura com 👍 para encerrar o caso.\ncaso: %s", reason, c.CaseID)
}

func room1FinalFailureBody(c *models.Case, cause, details string) string {
	if cause == "" {
		cause = "falha interna"
	}
	body := fmt.Sprintf("Nao foi possivel concluir a triagem automatica deste encaminhamento.\n"+
		"causa: %s\n", cause)
	if details != "" {
		body += fmt.Sprintf("detalhes: %s\n", details)
	}
	return body + fmt.Sprintf("A equipe deve tratar o caso manualmente. Confirme a leitura com 👍.\ncaso: %s", c.CaseID)
}

// truncateRunes caps free text copied into payloads and chat bodies.
func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
