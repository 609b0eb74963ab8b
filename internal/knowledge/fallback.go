package knowledge

import (
	"sort"
	"strings"

	"github.com/shree2160/sahayakAIv1/internal/models"
)

// fallbackGuides are the built-in procedural guides served when the database
// is unreachable or returns nothing. Content is Hindi because that is what
// most callers hear read back.
var fallbackGuides = []models.KnowledgeEntry{
	{
		ID:       "1",
		Content:  "मोबाइल रिचार्ज कैसे करें:\n\n1. PhonePe, Paytm, या Google Pay ऐप खोलें\n2. 'Mobile Recharge' या 'रिचार्ज' विकल्प चुनें\n3. अपना मोबाइल नंबर डालें\n4. प्लान चुनें या राशि डालें\n5. UPI PIN डालकर भुगतान करें\n\nया नजदीकी मोबाइल शॉप पर जाकर रिचार्ज करवाएं।",
		Category: "telecom",
	},
	{
		ID:       "2",
		Content:  "आधार कार्ड अपडेट कैसे करें:\n\n1. myaadhaar.uidai.gov.in पर जाएं\n2. 'Update Aadhaar' पर क्लिक करें\n3. आधार नंबर डालें और OTP वेरीफाई करें\n4. जो जानकारी बदलनी है वो चुनें\n5. नई जानकारी भरें\n6. ₹50 फीस का भुगतान करें\n\nया नजदीकी आधार केंद्र जाएं।",
		Category: "government",
	},
	{
		ID:       "3",
		Content:  "पैन कार्ड कैसे बनवाएं:\n\n1. onlineservices.nsdl.com पर जाएं\n2. 'Apply for New PAN' चुनें\n3. फॉर्म 49A भरें\n4. दस्तावेज अपलोड करें: फोटो, हस्ताक्षर, आधार\n5. ₹110 फीस भरें\n6. 15-20 दिनों में पैन कार्ड मिलेगा\n\nहेल्पलाइन: 020-27218080",
		Category: "government",
	},
	{
		ID:       "4",
		Content:  "बैंक अकाउंट कैसे खोलें:\n\n1. नजदीकी बैंक शाखा जाएं\n2. जरूरी दस्तावेज: आधार कार्ड, पैन कार्ड, फोटो\n3. अकाउंट खोलने का फॉर्म भरें\n4. न्यूनतम जमा: ₹500-1000\n\nजीरो बैलेंस अकाउंट:\n- प्रधानमंत्री जन धन योजना (PMJDY)\n- आधार + मोबाइल से खुल जाता है",
		Category: "banking",
	},
	{
		ID:       "5",
		Content:  "UPI Payment कैसे करें:\n\n1. PhonePe/GPay/Paytm ऐप डाउनलोड करें\n2. मोबाइल नंबर वेरीफाई करें\n3. बैंक अकाउंट लिंक करें\n4. UPI PIN सेट करें\n\nपेमेंट करना:\n- QR Code स्कैन करें\n- या UPI ID डालें\n- राशि डालें और PIN से कन्फर्म करें",
		Category: "banking",
	},
	{
		ID:       "6",
		Content:  "पासपोर्ट कैसे बनवाएं:\n\n1. passportindia.gov.in पर रजिस्टर करें\n2. फॉर्म भरें और अपॉइंटमेंट बुक करें\n3. फीस: सामान्य ₹1,500, तत्काल ₹3,500\n4. PSK पर जाएं - बायोमेट्रिक और डॉक्यूमेंट वेरिफिकेशन\n5. पुलिस वेरिफिकेशन के बाद पासपोर्ट मिलेगा\n\nसमय: 30-45 दिन",
		Category: "government",
	},
	{
		ID:       "7",
		Content:  "Driving License कैसे बनवाएं:\n\n1. parivahan.gov.in पर जाएं\n2. Learner License के लिए अप्लाई करें\n3. RTO में टेस्ट दें (₹200-400 फीस)\n4. 30 दिन बाद Permanent License के लिए अप्लाई करें\n5. ड्राइविंग टेस्ट दें\n\nजरूरी: आधार, पता प्रमाण, आयु 18+",
		Category: "transport",
	},
	{
		ID:       "8",
		Content:  "आयुष्मान भारत कार्ड:\n\n1. mera.pmjay.gov.in पर पात्रता जांचें\n2. CSC सेंटर या सरकारी अस्पताल में आयुष्मान मित्र से मिलें\n3. आधार और राशन कार्ड दिखाएं\n4. e-KYC करें\n\nलाभ: ₹5 लाख तक मुफ्त इलाज\nहेल्पलाइन: 14555",
		Category: "health",
	},
}

// stopWords are query tokens too generic to rank guides by; "कैसे" alone
// matches almost every guide.
var stopWords = map[string]bool{
	"कैसे": true, "करें": true, "क्या": true, "है": true, "के": true,
	"की": true, "का": true, "में": true, "लिए": true, "और": true,
	"how": true, "to": true, "do": true, "the": true, "a": true,
	"for": true, "my": true, "me": true,
}

// FallbackSearch returns built-in guides ranked by how many query words their
// content mentions, generic words excluded. With no keyword match the first
// two guides are returned so the assistant always has something procedural
// to say.
func FallbackSearch(query string) []models.KnowledgeEntry {
	var keywords []string
	for _, kw := range strings.Fields(strings.ToLower(query)) {
		if !stopWords[kw] {
			keywords = append(keywords, kw)
		}
	}

	type scored struct {
		entry models.KnowledgeEntry
		hits  int
	}
	var matched []scored
	for _, entry := range fallbackGuides {
		content := strings.ToLower(entry.Content)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(content, kw) {
				hits++
			}
		}
		if hits > 0 {
			matched = append(matched, scored{entry, hits})
		}
	}
	if len(matched) == 0 {
		return fallbackGuides[:2]
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].hits > matched[j].hits
	})
	if len(matched) > 3 {
		matched = matched[:3]
	}
	results := make([]models.KnowledgeEntry, len(matched))
	for i, m := range matched {
		results[i] = m.entry
	}
	return results
}
