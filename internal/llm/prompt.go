package llm

// extractionPrompt asks for a JSON object with a "prodotti" list. The ten-item
// cap is advisory to the model; the parser keeps whatever comes back.
const extractionPrompt = `
Analizza questa immagine di un volantino di supermercato italiano e estrai SOLO le informazioni sui prodotti alimentari visibili.

Rispondi ESCLUSIVAMENTE con un JSON valido. Lo schema JSON richiesto è:
{
  "prodotti": [
    {
      "nome": "nome completo del prodotto",
      "marca": "marca del prodotto (es: Barilla, Mulino Bianco, Granarolo)",
      "categoria": "categoria (latticini, pasta, bevande, dolci, etc.)",
      "prezzo": "prezzo in euro se visibile (es: 2.49)",
      "descrizione": "breve descrizione del prodotto"
    }
  ]
}

Regole importanti:
- Il valore del campo "prezzo" DEVE essere una stringa (es: "2.49", "Non visibile").
- Estrai SOLO prodotti alimentari chiaramente visibili
- Se non vedi un prezzo, scrivi "Non visibile"
- Se non riconosci una marca, scrivi "Non identificata"
- Concentrati sui prodotti più evidenti e leggibili
- Massimo 10 prodotti per immagine
`

// Prompt returns the instruction sent with every page.
func Prompt() string {
	return extractionPrompt
}
