package orchestrator

// Static response texts. Crisis responses are served verbatim with no
// model involvement; fallback responses cover LLM outages.

const crisisResponseEN = `I'm really concerned about what you're sharing, and I want you to know that you don't have to face this alone.

Please reach out to someone who can help right now:
- Call or text 988 (Suicide & Crisis Lifeline, available 24/7)
- Text HOME to 741741 (Crisis Text Line)
- If you are in immediate danger, call 911 or go to your nearest emergency room

Talking to a trained counselor can make a real difference. You matter, and support is available right now.`

const crisisResponseFR = `Ce que tu partages m'inquiète beaucoup, et je veux que tu saches que tu n'as pas à traverser cela seul(e).

S'il te plaît, contacte quelqu'un qui peut t'aider dès maintenant :
- Appelle le 3114 (numéro national de prévention du suicide, disponible 24h/24)
- En cas de danger immédiat, appelle le 15 ou rends-toi aux urgences les plus proches

Parler à un professionnel formé peut vraiment faire la différence. Tu comptes, et du soutien est disponible dès maintenant.`

const lowRiskFooterEN = `

If these feelings become overwhelming, please consider reaching out to the 988 Suicide & Crisis Lifeline (call or text 988). You deserve support.`

const lowRiskFooterFR = `

Si ces sentiments deviennent trop lourds, n'hésite pas à contacter le 3114 (numéro national de prévention du suicide). Tu mérites du soutien.`

const fallbackResponseEN = `Thank you for sharing that with me. I'm having trouble putting together a full response right now, but I'm still here with you.

In the meantime, a few things that often help:
- Take a few slow, deep breaths (in for 4 counts, hold for 4, out for 4)
- Write down what you're feeling without judging it
- Step outside or move around for a few minutes if you can

Please try again in a moment, and if things feel urgent, consider talking to someone you trust or a professional.`

const fallbackResponseFR = `Merci de partager cela avec moi. J'ai du mal à formuler une réponse complète pour le moment, mais je suis toujours là avec toi.

En attendant, quelques choses qui aident souvent :
- Prends quelques respirations lentes et profondes (inspire sur 4 temps, retiens sur 4, expire sur 4)
- Note ce que tu ressens sans le juger
- Sors ou bouge quelques minutes si tu le peux

Réessaie dans un instant, et si la situation te semble urgente, pense à parler à quelqu'un de confiance ou à un professionnel.`

func crisisResponse(language string) string {
	if language == "fr" {
		return crisisResponseFR
	}
	return crisisResponseEN
}

func lowRiskFooter(language string) string {
	if language == "fr" {
		return lowRiskFooterFR
	}
	return lowRiskFooterEN
}

func fallbackResponse(language string) string {
	if language == "fr" {
		return fallbackResponseFR
	}
	return fallbackResponseEN
}
