package utils

var stopWords = func() map[string]struct{} {
	words := []string{
		"a", "about", "above", "after", "again", "against", "all", "almost", "alone", "along",
		"already", "also", "although", "always", "am", "among", "an", "and", "another", "any",
		"anyhow", "anyone", "anything", "anyway", "anywhere", "are", "around", "as", "at", "back",
		"be", "became", "because", "become", "becomes", "been", "before", "behind", "being", "below",
		"beside", "besides", "between", "beyond", "both", "but", "by", "can", "cannot", "could",
		"did", "do", "does", "doing", "done", "down", "during", "each", "either", "else",
		"elsewhere", "enough", "even", "ever", "every", "everyone", "everything", "everywhere",
		"except", "few", "for", "from", "further", "get", "give", "go", "had", "has", "have",
		"having", "he", "hence", "her", "here", "hers", "herself", "him", "himself", "his", "how",
		"however", "i", "if", "in", "indeed", "into", "is", "it", "its", "itself", "just", "keep",
		"last", "least", "less", "made", "many", "may", "me", "meanwhile", "might", "mine", "more",
		"moreover", "most", "mostly", "much", "must", "my", "myself", "neither", "never",
		"nevertheless", "next", "no", "nobody", "none", "nor", "not", "nothing", "now", "nowhere",
		"of", "off", "often", "on", "once", "one", "only", "onto", "or", "other", "others",
		"otherwise", "our", "ours", "ourselves", "out", "over", "own", "per", "perhaps", "please",
		"put", "rather", "re", "same", "see", "seem", "seemed", "seems", "several", "she", "should",
		"since", "so", "some", "somehow", "someone", "something", "sometime", "sometimes",
		"somewhere", "still", "such", "take", "than", "that", "the", "their", "them", "themselves",
		"then", "there", "therefore", "these", "they", "this", "those", "though", "through",
		"throughout", "thus", "to", "together", "too", "toward", "towards", "under", "until", "up",
		"upon", "us", "very", "via", "was", "we", "well", "were", "what", "whatever", "when",
		"whenever", "where", "whether", "which", "while", "who", "whoever", "whole", "whom",
		"whose", "why", "will", "with", "within", "without", "would", "yet", "you", "your",
		"yours", "yourself", "yourselves",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

// IsStopWord reports whether w is a common English function word.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}
