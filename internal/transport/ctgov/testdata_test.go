package ctgov

const sampleStudy = `{
  "protocolSection": {
    "identificationModule": {
      "nctId": "NCT05000001",
      "briefTitle": "Pump Study",
      "officialTitle": "A Randomized Trial of an Insulin Pump"
    },
    "descriptionModule": {
      "briefSummary": "Tests a new pump.",
      "detailedDescription": "Longer text."
    },
    "eligibilityModule": {"eligibilityCriteria": "Adults 18+"},
    "statusModule": {"overallStatus": "RECRUITING"},
    "designModule": {"studyType": "INTERVENTIONAL"},
    "conditionsModule": {"conditions": ["Type 2 Diabetes", "Obesity"]},
    "armsInterventionsModule": {
      "interventions": [
        {"type": "DEVICE", "name": "Pump", "description": "Closed loop"},
        {"type": "DRUG"}
      ]
    },
    "contactsLocationsModule": {
      "centralContacts": [{"name": "Jane Roe", "role": "CONTACT", "email": "jane@example.org"}, {}],
      "locations": [
        {"facility": "MGH", "city": "Boston", "state": "Massachusetts", "zip": "02114", "country": "United States",
         "geoPoint": {"lat": 42.36, "lon": -71.07}},
        {"facility": "BIDMC", "city": "Boston", "zip": " 02114 ", "country": "United States"},
        {"facility": "UT", "city": "Austin", "zip": "78712", "country": "United States"}
      ]
    }
  },
  "hasResults": false
}`
